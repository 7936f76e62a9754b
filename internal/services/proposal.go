package services

import (
	"context"
	"time"

	"github.com/grantflow/backend/internal/authz"
	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/metrics"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/repository"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/grantflow/backend/pkg/response"
	"gorm.io/gorm"
)

// ProposalService runs proposal and milestone operations: authorize, load,
// transition, save, then notify.
type ProposalService struct {
	repo     *repository.ProposalRepository
	notifier Notifier
	funding  config.FundingConfig
	now      func() time.Time
}

func NewProposalService(db *gorm.DB, notifier Notifier, funding config.FundingConfig) *ProposalService {
	return &ProposalService{
		repo:     repository.NewProposalRepository(db),
		notifier: notifier,
		funding:  funding,
		now:      time.Now,
	}
}

// step is one guarded operation: the machine and event it fires and the
// role the event requires.
type step struct {
	machine string
	event   contract.Event
	role    contract.Role
}

func proposalStep(event contract.Event) step {
	role, _ := contract.ProposalTable.RoleOf(event)
	return step{machine: contract.ProposalTable.Machine(), event: event, role: role}
}

func milestoneStep(event contract.Event) step {
	role, _ := contract.MilestoneTable.RoleOf(event)
	return step{machine: contract.MilestoneTable.Machine(), event: event, role: role}
}

// outcome is what a mutation produced besides the new aggregate state.
type outcome struct {
	notices []lifecycle.Notice
	history *models.HistoryEvent
}

// refused counts an error by kind and hands it back.
func refused(machine string, err error) error {
	if _, kind := response.Status(err); kind != "" {
		metrics.RecordRejected(machine, kind)
	}
	return err
}

// load returns p if a may see it. Hidden proposals read as missing.
func (s *ProposalService) load(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewProposal(a, p) {
		return nil, &contract.NotFoundError{Entity: "proposal", ID: id}
	}
	return p, nil
}

// mutate checks the role of st before reading anything, then ownership on
// the loaded proposal, applies fn and writes the result. Notices go out only
// after the write commits.
func (s *ProposalService) mutate(ctx context.Context, a authz.Actor, id uint, st step, fn func(p *models.Proposal) (outcome, error)) (*models.Proposal, error) {
	if err := authz.RequireRole(a, st.role, string(st.event)); err != nil {
		return nil, refused(st.machine, err)
	}
	p, err := s.load(ctx, a, id)
	if err != nil {
		return nil, refused(st.machine, err)
	}
	if st.role == contract.RoleTeam {
		if err := authz.RequireTeam(a, p, string(st.event)); err != nil {
			return nil, refused(st.machine, err)
		}
	}

	out, err := fn(p)
	if err != nil {
		return nil, refused(st.machine, err)
	}
	if err := s.repo.Save(ctx, p, repository.InsertHistory(out.history)); err != nil {
		return nil, refused(st.machine, err)
	}

	metrics.RecordTransition(st.machine, string(st.event))
	logger.Info().
		Uint("proposal_id", p.ID).
		Uint("actor", a.UserID).
		Str("event", string(st.event)).
		Str("state", p.State().String()).
		Msg("[Proposal] transition applied")

	lifecycle.Stamp(out.notices, p.Version)
	s.notifier.Notify(ctx, out.notices)
	if err := s.withFollowers(ctx, a, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateDraft starts a new proposal owned by the caller.
func (s *ProposalService) CreateDraft(ctx context.Context, a authz.Actor, rfpID *uint) (*models.Proposal, error) {
	if err := authz.RequireRole(a, contract.RoleUser, "create_draft"); err != nil {
		return nil, err
	}
	p := lifecycle.NewDraft(a.UserID, rfpID)
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ListDrafts returns the caller's editable proposals.
func (s *ProposalService) ListDrafts(ctx context.Context, a authz.Actor) ([]models.Proposal, error) {
	if err := authz.RequireRole(a, contract.RoleUser, "list_drafts"); err != nil {
		return nil, err
	}
	return s.repo.ListDrafts(ctx, a.UserID)
}

// Get reads a proposal with its follower information for a.
func (s *ProposalService) Get(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	p, err := s.load(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if err := s.withFollowers(ctx, a, p); err != nil {
		return nil, err
	}
	return p, nil
}

// withFollowers fills the follower fields derived for reader a.
func (s *ProposalService) withFollowers(ctx context.Context, a authz.Actor, p *models.Proposal) error {
	var err error
	if p.FollowersCount, err = s.repo.FollowersCount(ctx, p.ID); err != nil {
		return err
	}
	p.IsFollowed = false
	if a.UserID != 0 {
		if p.IsFollowed, err = s.repo.IsFollowing(ctx, p.ID, a.UserID); err != nil {
			return err
		}
	}
	return nil
}

// List returns public proposals, or any status for admins.
func (s *ProposalService) List(ctx context.Context, a authz.Actor, req *repository.ProposalListRequest) (*repository.ProposalListResponse, error) {
	if a.IsAdmin() && req.Status != "" {
		return s.repo.ListByStatus(ctx, req)
	}
	return s.repo.ListPublic(ctx, req)
}

func (s *ProposalService) UpdateDraft(ctx context.Context, a authz.Actor, id uint, d lifecycle.Draft) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventUpdateDraft), func(p *models.Proposal) (outcome, error) {
		return outcome{}, lifecycle.UpdateDraft(p, d)
	})
}

func (s *ProposalService) Delete(ctx context.Context, a authz.Actor, id uint) error {
	_, err := s.mutate(ctx, a, id, proposalStep(contract.EventDelete), func(p *models.Proposal) (outcome, error) {
		return outcome{}, lifecycle.Delete(p)
	})
	return err
}

func (s *ProposalService) SubmitForApproval(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventSubmit), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.Submit(p, s.now())
		return outcome{notices: ns}, err
	})
}

func (s *ProposalService) Resubmit(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventResubmit), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.Resubmit(p, s.now())
		return outcome{notices: ns}, err
	})
}

// Approve approves a pending proposal or, when isApprove is false, rejects
// it with reason.
func (s *ProposalService) Approve(ctx context.Context, a authz.Actor, id uint, isApprove bool, reason string) (*models.Proposal, error) {
	if isApprove {
		return s.mutate(ctx, a, id, proposalStep(contract.EventApprove), func(p *models.Proposal) (outcome, error) {
			ns, err := lifecycle.Approve(p, s.now())
			return outcome{notices: ns}, err
		})
	}
	return s.mutate(ctx, a, id, proposalStep(contract.EventReject), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.Reject(p, reason, s.now())
		return outcome{notices: ns}, err
	})
}

// Publish makes an approved proposal live. The configured funding policy
// picks the stage.
func (s *ProposalService) Publish(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	event := contract.EventPublish
	if s.funding.FundedOnPublish {
		event = contract.EventPublishFunded
	}
	return s.mutate(ctx, a, id, proposalStep(event), func(p *models.Proposal) (outcome, error) {
		ns, history, err := lifecycle.Publish(p, a.UserID, s.funding.FundedOnPublish, s.now())
		return outcome{notices: ns, history: history}, err
	})
}

func (s *ProposalService) Cancel(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventCancel), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.Cancel(p)
		return outcome{notices: ns}, err
	})
}

func (s *ProposalService) MarkFunded(ctx context.Context, a authz.Actor, id uint) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventMarkFunded), func(p *models.Proposal) (outcome, error) {
		return outcome{}, lifecycle.MarkFunded(p)
	})
}

func (s *ProposalService) SetPrivate(ctx context.Context, a authz.Actor, id uint, private bool) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventUpdatePrivate), func(p *models.Proposal) (outcome, error) {
		return outcome{}, lifecycle.SetPrivate(p, private)
	})
}

type AdminEditRequest struct {
	Title    string            `json:"title"`
	Brief    string            `json:"brief"`
	Content  string            `json:"content"`
	Category contract.Category `json:"category"`
}

func (s *ProposalService) AdminEdit(ctx context.Context, a authz.Actor, id uint, req *AdminEditRequest) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, proposalStep(contract.EventAdminUpdate), func(p *models.Proposal) (outcome, error) {
		return outcome{}, lifecycle.AdminEdit(p, req.Title, req.Brief, req.Content, req.Category)
	})
}

// Follow adds or removes the caller as a follower. Follower rows live outside
// the versioned aggregate, so following never conflicts with other writes.
func (s *ProposalService) Follow(ctx context.Context, a authz.Actor, id uint, follow bool) (*models.Proposal, error) {
	if err := authz.RequireEvent(a, contract.ProposalTable, contract.EventFollow); err != nil {
		return nil, refused("proposal", err)
	}
	p, err := s.load(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CheckFollow(p); err != nil {
		return nil, refused("proposal", err)
	}
	if follow {
		err = s.repo.Follow(ctx, id, a.UserID)
	} else {
		err = s.repo.Unfollow(ctx, id, a.UserID)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, a, id)
}

func (s *ProposalService) RequestPayout(ctx context.Context, a authz.Actor, id, milestoneID uint) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, milestoneStep(contract.EventRequestPayout), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.RequestPayout(p, milestoneID, a.UserID, s.now())
		return outcome{notices: ns}, err
	})
}

func (s *ProposalService) AcceptPayout(ctx context.Context, a authz.Actor, id, milestoneID uint) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, milestoneStep(contract.EventAcceptPayout), func(p *models.Proposal) (outcome, error) {
		ns, history, err := lifecycle.AcceptPayout(p, milestoneID, s.now())
		return outcome{notices: ns, history: history}, err
	})
}

func (s *ProposalService) RejectPayout(ctx context.Context, a authz.Actor, id, milestoneID uint, reason string) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, milestoneStep(contract.EventRejectPayout), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.RejectPayout(p, milestoneID, reason, s.now())
		return outcome{notices: ns}, err
	})
}

func (s *ProposalService) MarkPaid(ctx context.Context, a authz.Actor, id, milestoneID uint, txID string) (*models.Proposal, error) {
	return s.mutate(ctx, a, id, milestoneStep(contract.EventMarkPaid), func(p *models.Proposal) (outcome, error) {
		ns, err := lifecycle.MarkPaid(p, milestoneID, txID, s.now())
		return outcome{notices: ns}, err
	})
}

// History returns the public activity feed.
func (s *ProposalService) History(ctx context.Context, limit int) ([]models.HistoryEvent, error) {
	return s.repo.History(ctx, limit)
}

// RemindStalePayouts re-notifies admins about payout requests older than age.
func (s *ProposalService) RemindStalePayouts(ctx context.Context, age time.Duration) (int, error) {
	stale, err := s.repo.StaleRequests(ctx, s.now().Add(-age))
	if err != nil {
		return 0, err
	}
	notices := make([]lifecycle.Notice, 0, len(stale))
	for _, m := range stale {
		notices = append(notices, lifecycle.Notice{
			Kind:        contract.NoticeAdminPayout,
			ProposalID:  m.ProposalID,
			MilestoneID: m.ID,
			Message:     "payout request still waiting for review",
		})
	}
	s.notifier.Notify(ctx, notices)
	return len(notices), nil
}
