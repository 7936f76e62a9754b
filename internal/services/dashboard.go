package services

import (
	"context"
	"sort"
	"time"

	"github.com/grantflow/backend/internal/authz"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardStatsRequest struct {
	StartDate     string `form:"startDate"`
	EndDate       string `form:"endDate"`
	ProposalLimit int    `form:"proposalLimit"`
}

type DashboardStats struct {
	PendingApprovals int64           `json:"pendingApprovals"`
	RequestedPayouts int64           `json:"requestedPayouts"`
	LiveBounties     int64           `json:"liveBounties"`
	OpenClaims       int64           `json:"openClaims"`
	PaidMilestones   int64           `json:"paidMilestones"`
	PaidOut          decimal.Decimal `json:"paidOut"`
}

type StatusCount struct {
	Status string `json:"status"`
	Stage  string `json:"stage"`
	Count  int64  `json:"count"`
}

type ProposalPayoutStats struct {
	ProposalID     uint            `json:"proposalId"`
	Title          string          `json:"title"`
	Target         decimal.Decimal `json:"target"`
	PaidOut        decimal.Decimal `json:"paidOut"`
	PaidMilestones int64           `json:"paidMilestones"`
}

type DashboardResponse struct {
	Stats     DashboardStats        `json:"stats"`
	Breakdown []StatusCount         `json:"breakdown"`
	Proposals []ProposalPayoutStats `json:"proposals"`
}

// dateRange parses the request window, defaulting to the last 30 days.
func (req *DashboardStatsRequest) dateRange(now time.Time) (time.Time, time.Time) {
	start := now.AddDate(0, 0, -30)
	if req.StartDate != "" {
		if t, err := time.Parse("2006-01-02", req.StartDate); err == nil {
			start = t
		}
	}
	end := now
	if req.EndDate != "" {
		if t, err := time.Parse("2006-01-02", req.EndDate); err == nil {
			end = t.Add(24*time.Hour - time.Second)
		}
	}
	return start, end
}

// GetStats summarises the workflow for admins. Backlog counts are current;
// payout figures cover milestones paid inside the requested window.
func (s *DashboardService) GetStats(ctx context.Context, a authz.Actor, req *DashboardStatsRequest) (*DashboardResponse, error) {
	if err := authz.RequireRole(a, contract.RoleAdmin, "dashboard"); err != nil {
		return nil, err
	}
	startDate, endDate := req.dateRange(time.Now().UTC())
	limit := req.ProposalLimit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	db := s.db.WithContext(ctx)

	var stats DashboardStats
	db.Model(&models.Proposal{}).Where("status = ?", contract.ProposalPending).Count(&stats.PendingApprovals)
	db.Model(&models.Milestone{}).Where("stage = ?", contract.MilestoneRequested).Count(&stats.RequestedPayouts)
	db.Model(&models.RFW{}).Where("status = ?", contract.RFWLive).Count(&stats.LiveBounties)
	db.Model(&models.RFWMilestoneClaim{}).Where("stage = ?", contract.ClaimRequested).Count(&stats.OpenClaims)

	var paid []models.Milestone
	if err := db.Select("proposal_id, payout_amount").
		Where("stage = ? AND date_paid BETWEEN ? AND ?", contract.MilestonePaid, startDate, endDate).
		Find(&paid).Error; err != nil {
		return nil, err
	}
	byProposal := make(map[uint]*ProposalPayoutStats)
	for _, ms := range paid {
		stats.PaidMilestones++
		stats.PaidOut = stats.PaidOut.Add(ms.PayoutAmount)
		ps, ok := byProposal[ms.ProposalID]
		if !ok {
			ps = &ProposalPayoutStats{ProposalID: ms.ProposalID}
			byProposal[ms.ProposalID] = ps
		}
		ps.PaidMilestones++
		ps.PaidOut = ps.PaidOut.Add(ms.PayoutAmount)
	}

	var breakdown []StatusCount
	if err := db.Model(&models.Proposal{}).
		Select("status, stage, COUNT(*) as count").
		Where("status <> ?", contract.ProposalDeleted).
		Group("status, stage").
		Order("count DESC").
		Scan(&breakdown).Error; err != nil {
		return nil, err
	}

	proposals := make([]ProposalPayoutStats, 0, len(byProposal))
	if len(byProposal) > 0 {
		ids := make([]uint, 0, len(byProposal))
		for id := range byProposal {
			ids = append(ids, id)
		}
		var rows []models.Proposal
		if err := db.Select("id, title, target").Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, p := range rows {
			ps := byProposal[p.ID]
			ps.Title = p.Title
			ps.Target = p.Target
			proposals = append(proposals, *ps)
		}
	}
	sort.Slice(proposals, func(i, j int) bool {
		if c := proposals[i].PaidOut.Cmp(proposals[j].PaidOut); c != 0 {
			return c > 0
		}
		return proposals[i].ProposalID < proposals[j].ProposalID
	})
	if len(proposals) > limit {
		proposals = proposals[:limit]
	}

	return &DashboardResponse{
		Stats:     stats,
		Breakdown: breakdown,
		Proposals: proposals,
	}, nil
}
