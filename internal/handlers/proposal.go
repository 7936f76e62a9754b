package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/repository"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/response"
	"github.com/shopspring/decimal"
)

type ProposalHandler struct {
	proposalService *services.ProposalService
}

func NewProposalHandler(proposalService *services.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService}
}

// paramID parses a uint path parameter, answering 400 when it is malformed.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// reply sends the updated aggregate or maps err.
func reply(c *gin.Context, data interface{}, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, data)
}

type CreateDraftRequest struct {
	RFPID *uint `json:"rfpId"`
}

// CreateDraft starts a proposal
// POST /api/v1/proposals/drafts
func (h *ProposalHandler) CreateDraft(c *gin.Context) {
	var req CreateDraftRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	p, err := h.proposalService.CreateDraft(c.Request.Context(), middleware.Actor(c), req.RFPID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

// ListDrafts returns the caller's editable proposals
// GET /api/v1/proposals/drafts
func (h *ProposalHandler) ListDrafts(c *gin.Context) {
	drafts, err := h.proposalService.ListDrafts(c.Request.Context(), middleware.Actor(c))
	reply(c, drafts, err)
}

// List returns public proposals; admins may filter by any status
// GET /api/v1/proposals
func (h *ProposalHandler) List(c *gin.Context) {
	var req repository.ProposalListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	resp, err := h.proposalService.List(c.Request.Context(), middleware.Actor(c), &req)
	reply(c, resp, err)
}

// GET /api/v1/proposals/:id
func (h *ProposalHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.proposalService.Get(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"proposal": p, "actions": lifecycle.ProposalActions(p)})
}

type MilestoneInput struct {
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	PayoutAmount    decimal.Decimal `json:"payoutAmount"`
	ImmediatePayout bool            `json:"immediatePayout"`
	DateEstimated   *time.Time      `json:"dateEstimated"`
}

type UpdateDraftRequest struct {
	Title      string            `json:"title"`
	Brief      string            `json:"brief"`
	Content    string            `json:"content"`
	Category   contract.Category `json:"category"`
	Target     decimal.Decimal   `json:"target"`
	Milestones []MilestoneInput  `json:"milestones"`
}

func (r *UpdateDraftRequest) draft() lifecycle.Draft {
	ms := make([]models.Milestone, len(r.Milestones))
	for i, m := range r.Milestones {
		ms[i] = models.Milestone{
			Title:           m.Title,
			Content:         m.Content,
			PayoutAmount:    m.PayoutAmount,
			ImmediatePayout: m.ImmediatePayout,
			DateEstimated:   m.DateEstimated,
		}
	}
	return lifecycle.Draft{
		Title:      r.Title,
		Brief:      r.Brief,
		Content:    r.Content,
		Category:   r.Category,
		Target:     r.Target,
		Milestones: ms,
	}
}

// PUT /api/v1/proposals/:id
func (h *ProposalHandler) UpdateDraft(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.proposalService.UpdateDraft(c.Request.Context(), middleware.Actor(c), id, req.draft())
	reply(c, p, err)
}

// DELETE /api/v1/proposals/:id
func (h *ProposalHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.proposalService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "proposal deleted"})
}

// transition adapts a service call that only needs the proposal id.
func (h *ProposalHandler) transition(fn func(*gin.Context, uint) (*models.Proposal, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		p, err := fn(c, id)
		reply(c, p, err)
	}
}

// PUT /api/v1/proposals/:id/submit_for_approval
func (h *ProposalHandler) Submit(c *gin.Context) {
	h.transition(func(c *gin.Context, id uint) (*models.Proposal, error) {
		return h.proposalService.SubmitForApproval(c.Request.Context(), middleware.Actor(c), id)
	})(c)
}

// PUT /api/v1/proposals/:id/resubmit
func (h *ProposalHandler) Resubmit(c *gin.Context) {
	h.transition(func(c *gin.Context, id uint) (*models.Proposal, error) {
		return h.proposalService.Resubmit(c.Request.Context(), middleware.Actor(c), id)
	})(c)
}

type ApproveRequest struct {
	IsApprove    bool   `json:"isApprove"`
	RejectReason string `json:"rejectReason"`
}

// PUT /api/v1/proposals/:id/approve
func (h *ProposalHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.proposalService.Approve(c.Request.Context(), middleware.Actor(c), id, req.IsApprove, req.RejectReason)
	reply(c, p, err)
}

// PUT /api/v1/proposals/:id/publish
func (h *ProposalHandler) Publish(c *gin.Context) {
	h.transition(func(c *gin.Context, id uint) (*models.Proposal, error) {
		return h.proposalService.Publish(c.Request.Context(), middleware.Actor(c), id)
	})(c)
}

// PUT /api/v1/proposals/:id/cancel
func (h *ProposalHandler) Cancel(c *gin.Context) {
	h.transition(func(c *gin.Context, id uint) (*models.Proposal, error) {
		return h.proposalService.Cancel(c.Request.Context(), middleware.Actor(c), id)
	})(c)
}

// PUT /api/v1/proposals/:id/funded
func (h *ProposalHandler) MarkFunded(c *gin.Context) {
	h.transition(func(c *gin.Context, id uint) (*models.Proposal, error) {
		return h.proposalService.MarkFunded(c.Request.Context(), middleware.Actor(c), id)
	})(c)
}

type PrivateRequest struct {
	IsPrivate bool `json:"isPrivate"`
}

// PUT /api/v1/proposals/:id/private
func (h *ProposalHandler) SetPrivate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req PrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.proposalService.SetPrivate(c.Request.Context(), middleware.Actor(c), id, req.IsPrivate)
	reply(c, p, err)
}

type FollowRequest struct {
	IsFollow bool `json:"isFollow"`
}

// PUT /api/v1/proposals/:id/follow
func (h *ProposalHandler) Follow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req FollowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.proposalService.Follow(c.Request.Context(), middleware.Actor(c), id, req.IsFollow)
	reply(c, p, err)
}

// PUT /api/v1/proposals/:id/admin
func (h *ProposalHandler) AdminEdit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.AdminEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.proposalService.AdminEdit(c.Request.Context(), middleware.Actor(c), id, &req)
	reply(c, p, err)
}

// milestone adapts a payout pipeline call on /proposals/:id/milestone/:msId.
func (h *ProposalHandler) milestone(c *gin.Context, fn func(id, msID uint) (*models.Proposal, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msID, ok := paramID(c, "msId")
	if !ok {
		return
	}
	p, err := fn(id, msID)
	reply(c, p, err)
}

// PUT /api/v1/proposals/:id/milestone/:msId/request
func (h *ProposalHandler) RequestPayout(c *gin.Context) {
	h.milestone(c, func(id, msID uint) (*models.Proposal, error) {
		return h.proposalService.RequestPayout(c.Request.Context(), middleware.Actor(c), id, msID)
	})
}

// PUT /api/v1/proposals/:id/milestone/:msId/accept
func (h *ProposalHandler) AcceptPayout(c *gin.Context) {
	h.milestone(c, func(id, msID uint) (*models.Proposal, error) {
		return h.proposalService.AcceptPayout(c.Request.Context(), middleware.Actor(c), id, msID)
	})
}

type RejectPayoutRequest struct {
	Reason string `json:"reason"`
}

// PUT /api/v1/proposals/:id/milestone/:msId/reject
func (h *ProposalHandler) RejectPayout(c *gin.Context) {
	var req RejectPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.milestone(c, func(id, msID uint) (*models.Proposal, error) {
		return h.proposalService.RejectPayout(c.Request.Context(), middleware.Actor(c), id, msID, req.Reason)
	})
}

type MarkPaidRequest struct {
	TxID string `json:"txId"`
}

// PUT /api/v1/proposals/:id/milestone/:msId/paid
func (h *ProposalHandler) MarkPaid(c *gin.Context) {
	var req MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	h.milestone(c, func(id, msID uint) (*models.Proposal, error) {
		return h.proposalService.MarkPaid(c.Request.Context(), middleware.Actor(c), id, msID, req.TxID)
	})
}

// History returns the public activity feed
// GET /api/v1/history
func (h *ProposalHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.proposalService.History(c.Request.Context(), limit)
	reply(c, events, err)
}
