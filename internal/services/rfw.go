package services

import (
	"context"
	"time"

	"github.com/grantflow/backend/internal/authz"
	"github.com/grantflow/backend/internal/lifecycle"
	"github.com/grantflow/backend/internal/metrics"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/repository"
	"github.com/grantflow/backend/internal/validation"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RFWService struct {
	repo     *repository.RFWRepository
	tags     *repository.TagRepository
	notifier Notifier
	now      func() time.Time
}

func NewRFWService(db *gorm.DB, notifier Notifier) *RFWService {
	return &RFWService{
		repo:     repository.NewRFWRepository(db),
		tags:     repository.NewTagRepository(db),
		notifier: notifier,
		now:      time.Now,
	}
}

type RFWMilestoneInput struct {
	ID         uint            `json:"id"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	EffortFrom int             `json:"effortFrom"`
	EffortTo   int             `json:"effortTo"`
	Bounty     decimal.Decimal `json:"bounty"`
}

// RFWRequest is the admin-editable content of a bounty.
type RFWRequest struct {
	Title      string              `json:"title"`
	Brief      string              `json:"brief"`
	Content    string              `json:"content"`
	Category   contract.Category   `json:"category"`
	Milestones []RFWMilestoneInput `json:"milestones"`
	TagIDs     []uint              `json:"tagIds"`
}

// apply copies req onto r. Milestones are matched by id, unknown or zero ids
// become new rows, and indices are re-packed in request order.
func (s *RFWService) apply(ctx context.Context, r *models.RFW, req *RFWRequest) error {
	tags, err := s.tags.Find(ctx, req.TagIDs)
	if err != nil {
		return err
	}
	r.Title = req.Title
	r.Brief = req.Brief
	r.Content = req.Content
	r.Category = req.Category
	r.Tags = tags

	existing := make(map[uint]models.RFWMilestone, len(r.Milestones))
	for _, m := range r.Milestones {
		existing[m.ID] = m
	}
	ms := make([]models.RFWMilestone, len(req.Milestones))
	for i, in := range req.Milestones {
		m, ok := existing[in.ID]
		if !ok || in.ID == 0 {
			m = models.RFWMilestone{RFWID: r.ID}
		}
		m.Index = i
		m.Title = in.Title
		m.Content = in.Content
		m.EffortFrom = in.EffortFrom
		m.EffortTo = in.EffortTo
		m.Bounty = in.Bounty
		ms[i] = m
	}
	r.Milestones = ms
	return validation.ValidateRFW(r)
}

func (s *RFWService) Create(ctx context.Context, a authz.Actor, req *RFWRequest) (*models.RFW, error) {
	if err := authz.RequireRole(a, contract.RoleAdmin, "create_rfw"); err != nil {
		return nil, err
	}
	r := &models.RFW{Status: contract.RFWDraft, CreatedBy: a.UserID}
	if err := s.apply(ctx, r, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	logger.Info().Uint("rfw_id", r.ID).Uint("actor", a.UserID).Msg("[RFW] created")
	return r, nil
}

func (s *RFWService) Update(ctx context.Context, a authz.Actor, id uint, req *RFWRequest) (*models.RFW, error) {
	if err := authz.RequireRole(a, contract.RoleAdmin, "update_rfw"); err != nil {
		return nil, err
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, r, req); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RFWService) Delete(ctx context.Context, a authz.Actor, id uint) error {
	if err := authz.RequireRole(a, contract.RoleAdmin, "delete_rfw"); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info().Uint("rfw_id", id).Uint("actor", a.UserID).Msg("[RFW] deleted")
	return nil
}

// Get reads a bounty. Drafts read as missing for everyone but admins.
func (s *RFWService) Get(ctx context.Context, a authz.Actor, id uint) (*models.RFW, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewRFW(a, r) {
		return nil, &contract.NotFoundError{Entity: "rfw", ID: id}
	}
	return r, nil
}

func (s *RFWService) List(ctx context.Context, a authz.Actor) ([]models.RFW, error) {
	return s.repo.List(ctx, a.IsAdmin())
}

// mutate guards, loads, applies fn and saves, then sends fn's notices.
// fn receives the loaded bounty and may return a follow-up that runs after
// the save, once generated ids are known.
func (s *RFWService) mutate(ctx context.Context, a authz.Actor, id uint, machine string, event contract.Event, role contract.Role,
	fn func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error)) (*models.RFW, error) {
	if err := authz.RequireRole(a, role, string(event)); err != nil {
		return nil, refused(machine, err)
	}
	r, err := s.Get(ctx, a, id)
	if err != nil {
		return nil, refused(machine, err)
	}
	notices, after, err := fn(r)
	if err != nil {
		return nil, refused(machine, err)
	}
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, refused(machine, err)
	}
	if after != nil {
		after(notices)
	}

	metrics.RecordTransition(machine, string(event))
	logger.Info().
		Uint("rfw_id", r.ID).
		Uint("actor", a.UserID).
		Str("event", string(event)).
		Msg("[RFW] transition applied")

	lifecycle.Stamp(notices, r.Version)
	s.notifier.Notify(ctx, notices)
	return r, nil
}

func (s *RFWService) Publish(ctx context.Context, a authz.Actor, id uint) (*models.RFW, error) {
	return s.mutate(ctx, a, id, contract.RFWTable.Machine(), contract.EventPublish, contract.RoleAdmin,
		func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error) {
			return nil, nil, lifecycle.PublishRFW(r, s.now())
		})
}

func (s *RFWService) Close(ctx context.Context, a authz.Actor, id uint) (*models.RFW, error) {
	return s.mutate(ctx, a, id, contract.RFWTable.Machine(), contract.EventClose, contract.RoleAdmin,
		func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error) {
			return nil, nil, lifecycle.CloseRFW(r, s.now())
		})
}

// RequestWork creates or resets the caller's worker row.
func (s *RFWService) RequestWork(ctx context.Context, a authz.Actor, id uint, message string) (*models.RFW, error) {
	role, _ := contract.WorkerTable.RoleOf(contract.EventRequestWork)
	return s.mutate(ctx, a, id, contract.WorkerTable.Machine(), contract.EventRequestWork, role,
		func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error) {
			w, ns, err := lifecycle.RequestWork(r, a.UserID, message, s.now())
			if err != nil {
				return nil, nil, err
			}
			return ns, func(ns []lifecycle.Notice) {
				for i := range ns {
					ns[i].WorkerID = w.ID
				}
			}, nil
		})
}

// ReviewWorker accepts or rejects a worker request.
func (s *RFWService) ReviewWorker(ctx context.Context, a authz.Actor, id, workerID uint, accept bool, message string) (*models.RFW, error) {
	event := contract.EventRejectWorker
	if accept {
		event = contract.EventAcceptWorker
	}
	role, _ := contract.WorkerTable.RoleOf(event)
	return s.mutate(ctx, a, id, contract.WorkerTable.Machine(), event, role,
		func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error) {
			_, ns, err := lifecycle.ReviewWorker(r, workerID, accept, message, s.now())
			return ns, nil, err
		})
}

// Claim files a claim on a bounty milestone for the caller's worker row.
func (s *RFWService) Claim(ctx context.Context, a authz.Actor, id, milestoneID, workerID uint, message, url string) (*models.RFW, error) {
	role, _ := contract.ClaimTable.RoleOf(contract.EventClaim)
	return s.mutate(ctx, a, id, contract.ClaimTable.Machine(), contract.EventClaim, role,
		func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error) {
			w := r.Worker(workerID)
			if w == nil {
				return nil, nil, &contract.NotFoundError{Entity: "rfw_worker", ID: workerID}
			}
			if err := authz.RequireWorkerOwner(a, w, string(contract.EventClaim)); err != nil {
				return nil, nil, err
			}
			c, ns, err := lifecycle.Claim(r, milestoneID, workerID, message, url, s.now())
			if err != nil {
				return nil, nil, err
			}
			return ns, func(ns []lifecycle.Notice) {
				for i := range ns {
					ns[i].ClaimID = c.ID
				}
			}, nil
		})
}

// ReviewClaim accepts or rejects a pending claim.
func (s *RFWService) ReviewClaim(ctx context.Context, a authz.Actor, id, milestoneID, claimID uint, accept bool, message string) (*models.RFW, error) {
	event := contract.EventRejectClaim
	if accept {
		event = contract.EventAcceptClaim
	}
	role, _ := contract.ClaimTable.RoleOf(event)
	return s.mutate(ctx, a, id, contract.ClaimTable.Machine(), event, role,
		func(r *models.RFW) ([]lifecycle.Notice, func([]lifecycle.Notice), error) {
			_, ns, err := lifecycle.ReviewClaim(r, milestoneID, claimID, accept, message, s.now())
			return ns, nil, err
		})
}

// TagService manages the bounty tag vocabulary.
type TagService struct {
	repo *repository.TagRepository
}

func NewTagService(db *gorm.DB) *TagService {
	return &TagService{repo: repository.NewTagRepository(db)}
}

type TagRequest struct {
	Text        string `json:"text"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func (s *TagService) List(ctx context.Context) ([]models.Tag, error) {
	return s.repo.List(ctx)
}

func (s *TagService) Upsert(ctx context.Context, a authz.Actor, req *TagRequest) (*models.Tag, error) {
	if err := authz.RequireRole(a, contract.RoleAdmin, "upsert_tag"); err != nil {
		return nil, err
	}
	tag := &models.Tag{Text: req.Text, Description: req.Description, Color: req.Color}
	if err := validation.ValidateTag(tag); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *TagService) Delete(ctx context.Context, a authz.Actor, id uint) error {
	if err := authz.RequireRole(a, contract.RoleAdmin, "delete_tag"); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
