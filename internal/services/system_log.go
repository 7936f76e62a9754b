package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/logger"
	"gorm.io/gorm"
)

// Audit levels stored in system_logs.level.
const (
	AuditInfo    = "info"
	AuditWarning = "warning"
	AuditError   = "error"
)

var auditDB *gorm.DB

// InitSystemLogger points RecordAudit at db. nil turns auditing off.
func InitSystemLogger(db *gorm.DB) {
	auditDB = db
}

// AuditEntry is one row of the admin trail: who did what to which
// proposal or bounty, and how the request ended.
type AuditEntry struct {
	Module    string
	Action    string
	Message   string
	UserID    *uint
	IP        string
	UserAgent string
	Extra     map[string]interface{}
}

func (e AuditEntry) row(level string, at time.Time) *models.SystemLog {
	row := &models.SystemLog{
		Level:     level,
		Module:    e.Module,
		Action:    e.Action,
		Message:   e.Message,
		UserID:    e.UserID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		CreatedAt: at,
	}
	if len(e.Extra) > 0 {
		if b, err := json.Marshal(e.Extra); err == nil {
			row.Extra = string(b)
		}
	}
	return row
}

// RecordAudit stores e. A failed insert is logged, never returned: the
// request it describes has already been answered.
func RecordAudit(level string, e AuditEntry) {
	if auditDB == nil {
		return
	}
	if err := auditDB.Create(e.row(level, time.Now())).Error; err != nil {
		logger.Warn().Err(err).Str("action", e.Action).Msg("[Audit] insert failed")
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

// SystemLogListRequest filters the audit trail. Dates are YYYY-MM-DD and
// inclusive; Action matches a prefix such as PROPOSAL_ or MILESTONE_PAID.
type SystemLogListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	UserID    uint   `form:"userId"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	Search    string `form:"search"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
	Items    []models.SystemLog `json:"items"`
}

func (req *SystemLogListRequest) filter(q *gorm.DB) *gorm.DB {
	if req.Level != "" {
		q = q.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		q = q.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		q = q.Where("action LIKE ?", req.Action+"%")
	}
	if req.UserID != 0 {
		q = q.Where("user_id = ?", req.UserID)
	}
	if t, err := time.Parse("2006-01-02", req.StartDate); err == nil {
		q = q.Where("created_at >= ?", t)
	}
	if t, err := time.Parse("2006-01-02", req.EndDate); err == nil {
		q = q.Where("created_at < ?", t.AddDate(0, 0, 1))
	}
	if req.Search != "" {
		q = q.Where("message LIKE ?", "%"+req.Search+"%")
	}
	return q
}

// List pages through the audit trail, newest first.
func (s *SystemLogService) List(ctx context.Context, req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	q := req.filter(s.db.WithContext(ctx).Model(&models.SystemLog{}))
	resp := &SystemLogListResponse{Page: req.Page, PageSize: req.PageSize}
	if err := q.Count(&resp.Total).Error; err != nil {
		return nil, err
	}
	err := q.Order("created_at DESC, id DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&resp.Items).Error
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetModules lists the modules present in the trail, sorted.
func (s *SystemLogService) GetModules(ctx context.Context) ([]string, error) {
	var modules []string
	if err := s.db.WithContext(ctx).Model(&models.SystemLog{}).Distinct("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	sort.Strings(modules)
	return modules, nil
}

// CleanupOldLogs drops rows older than retentionDays. Zero keeps everything.
func (s *SystemLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("created_at < ?", time.Now().AddDate(0, 0, -retentionDays)).
		Delete(&models.SystemLog{})
	return res.RowsAffected, res.Error
}
