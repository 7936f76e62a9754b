// Package repository loads and stores aggregates. Every Save is a single
// transaction guarded by the aggregate's version column: a save based on a
// stale read affects no rows and fails with contract.ConflictError.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TxHook runs inside a Save transaction after the aggregate is written.
type TxHook func(tx *gorm.DB) error

func translate(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &contract.NotFoundError{Entity: entity, ID: id}
	}
	return err
}

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) preload(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("milestone_index ASC") }).
		Preload("Team").
		Preload("Team.User")
}

// Get loads a proposal with its milestones and team, deleted ones included.
func (r *ProposalRepository) Get(ctx context.Context, id uint) (*models.Proposal, error) {
	var p models.Proposal
	if err := r.preload(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err, "proposal", id)
	}
	return &p, nil
}

// Create inserts a new proposal with its team and milestones at version 1.
func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) error {
	p.Version = 1
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
			return fmt.Errorf("create proposal: %w", err)
		}
		for i := range p.Team {
			p.Team[i].ProposalID = p.ID
			if err := tx.Omit(clause.Associations).Create(&p.Team[i]).Error; err != nil {
				return fmt.Errorf("create team member: %w", err)
			}
		}
		return saveMilestones(tx, p)
	})
}

// Save writes p and its milestone set if nobody else wrote it since it was
// loaded. hooks run in the same transaction.
func (r *ProposalRepository) Save(ctx context.Context, p *models.Proposal, hooks ...TxHook) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Proposal{}).
			Where("id = ? AND version = ?", p.ID, p.Version).
			Updates(map[string]interface{}{
				"version":        gorm.Expr("version + 1"),
				"status":         p.Status,
				"stage":          p.Stage,
				"title":          p.Title,
				"brief":          p.Brief,
				"content":        p.Content,
				"category":       p.Category,
				"target":         p.Target,
				"reject_reason":  p.RejectReason,
				"private":        p.Private,
				"date_approved":  p.DateApproved,
				"date_published": p.DatePublished,
			})
		if res.Error != nil {
			return fmt.Errorf("update proposal: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &contract.ConflictError{Entity: "proposal", ID: p.ID}
		}
		if err := saveMilestones(tx, p); err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

// saveMilestones makes the stored milestone set equal to p.Milestones.
func saveMilestones(tx *gorm.DB, p *models.Proposal) error {
	keep := make([]uint, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		if m.ID != 0 {
			keep = append(keep, m.ID)
		}
	}
	del := tx.Where("proposal_id = ?", p.ID)
	if len(keep) > 0 {
		del = del.Where("id NOT IN ?", keep)
	}
	if err := del.Delete(&models.Milestone{}).Error; err != nil {
		return fmt.Errorf("prune milestones: %w", err)
	}
	for i := range p.Milestones {
		p.Milestones[i].ProposalID = p.ID
		if err := tx.Omit(clause.Associations).Save(&p.Milestones[i]).Error; err != nil {
			return fmt.Errorf("save milestone %d: %w", p.Milestones[i].Index, err)
		}
	}
	return nil
}

// InsertHistory returns a hook that stores ev with the aggregate.
func InsertHistory(ev *models.HistoryEvent) TxHook {
	return func(tx *gorm.DB) error {
		if ev == nil {
			return nil
		}
		return tx.Create(ev).Error
	}
}

type ProposalListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Category string `form:"category"`
	Stage    string `form:"stage"`
	Status   string `form:"status"`
}

type ProposalListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Items    []models.Proposal `json:"items"`
}

func (req *ProposalListRequest) normalize() {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}
}

func (r *ProposalRepository) list(ctx context.Context, query *gorm.DB, req *ProposalListRequest) (*ProposalListResponse, error) {
	req.normalize()
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	if req.Stage != "" {
		query = query.Where("stage = ?", req.Stage)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.Proposal
	offset := (req.Page - 1) * req.PageSize
	err := query.
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("milestone_index ASC") }).
		Preload("Team").
		Offset(offset).Limit(req.PageSize).
		Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return &ProposalListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}

// ListPublic lists published, public proposals that have not failed or been canceled.
func (r *ProposalRepository) ListPublic(ctx context.Context, req *ProposalListRequest) (*ProposalListResponse, error) {
	query := r.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("status = ? AND private = ?", contract.ProposalLive, false).
		Where("stage NOT IN ?", []contract.ProposalStage{contract.StageCanceled, contract.StageFailed})
	return r.list(ctx, query, req)
}

// ListByStatus is the admin view over every proposal in a status.
func (r *ProposalRepository) ListByStatus(ctx context.Context, req *ProposalListRequest) (*ProposalListResponse, error) {
	query := r.db.WithContext(ctx).Model(&models.Proposal{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	} else {
		query = query.Where("status <> ?", contract.ProposalDeleted)
	}
	return r.list(ctx, query, req)
}

// ListDrafts returns userID's proposals that are still editable.
func (r *ProposalRepository) ListDrafts(ctx context.Context, userID uint) ([]models.Proposal, error) {
	var items []models.Proposal
	memberOf := r.db.Model(&models.ProposalMember{}).Select("proposal_id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("milestone_index ASC") }).
		Preload("Team").
		Where("id IN (?)", memberOf).
		Where("status IN ?", []contract.ProposalStatus{contract.ProposalDraft, contract.ProposalRejected}).
		Order("id DESC").
		Find(&items).Error
	return items, err
}

// Follow records userID as a follower. Following twice is a no-op.
func (r *ProposalRepository) Follow(ctx context.Context, proposalID, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ProposalFollower{ProposalID: proposalID, UserID: userID}).Error
}

func (r *ProposalRepository) Unfollow(ctx context.Context, proposalID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("proposal_id = ? AND user_id = ?", proposalID, userID).
		Delete(&models.ProposalFollower{}).Error
}

func (r *ProposalRepository) FollowersCount(ctx context.Context, proposalID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ProposalFollower{}).Where("proposal_id = ?", proposalID).Count(&n).Error
	return n, err
}

func (r *ProposalRepository) IsFollowing(ctx context.Context, proposalID, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ProposalFollower{}).
		Where("proposal_id = ? AND user_id = ?", proposalID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *ProposalRepository) FollowerIDs(ctx context.Context, proposalID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ProposalFollower{}).
		Where("proposal_id = ?", proposalID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// StaleRequests returns milestones waiting in REQUESTED since before cutoff
// on LIVE proposals whose stage has not ended.
func (r *ProposalRepository) StaleRequests(ctx context.Context, cutoff time.Time) ([]models.Milestone, error) {
	var ms []models.Milestone
	err := r.db.WithContext(ctx).
		Joins("JOIN proposals ON proposals.id = milestones.proposal_id").
		Where("milestones.stage = ? AND milestones.date_requested < ?", contract.MilestoneRequested, cutoff).
		Where("proposals.status = ? AND proposals.stage NOT IN ?", contract.ProposalLive,
			[]contract.ProposalStage{contract.StageCompleted, contract.StageFailed, contract.StageCanceled}).
		Order("milestones.date_requested ASC").
		Find(&ms).Error
	return ms, err
}

// History returns the newest public history events.
func (r *ProposalRepository) History(ctx context.Context, limit int) ([]models.HistoryEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var events []models.HistoryEvent
	err := r.db.WithContext(ctx).Order("date DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}
