package lifecycle

import (
	"time"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/validation"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/shopspring/decimal"
)

// NewDraft returns a fresh (DRAFT, PREVIEW) proposal owned by creatorID.
func NewDraft(creatorID uint, rfpID *uint) *models.Proposal {
	return &models.Proposal{
		Status:    contract.ProposalDraft,
		Stage:     contract.StagePreview,
		Target:    decimal.Zero,
		RFPID:     rfpID,
		CreatedBy: creatorID,
		Team:      []models.ProposalMember{{UserID: creatorID}},
	}
}

// ProposalActions lists the events permitted from p's current state.
func ProposalActions(p *models.Proposal) []contract.Event {
	return contract.ProposalTable.Events(p.State())
}

func fireProposal(p *models.Proposal, event contract.Event) (contract.Edge[contract.ProposalState], error) {
	edge, err := contract.ProposalTable.Lookup(p.State(), event)
	if err != nil {
		return edge, err
	}
	p.Status = edge.To.Status
	if edge.To.Stage != "" {
		p.Stage = edge.To.Stage
	}
	return edge, nil
}

func checkProposal(p *models.Proposal, event contract.Event) (contract.Edge[contract.ProposalState], error) {
	return contract.ProposalTable.Lookup(p.State(), event)
}

func teamNotice(p *models.Proposal) Notice {
	return Notice{ProposalID: p.ID, Recipients: p.TeamUserIDs()}
}

// Submit moves a draft to PENDING once it passes validation.
func Submit(p *models.Proposal, now time.Time) ([]Notice, error) {
	return submit(p, contract.EventSubmit, now)
}

// Resubmit moves a rejected proposal back to PENDING and clears the reason.
func Resubmit(p *models.Proposal, now time.Time) ([]Notice, error) {
	return submit(p, contract.EventResubmit, now)
}

func submit(p *models.Proposal, event contract.Event, now time.Time) ([]Notice, error) {
	if _, err := checkProposal(p, event); err != nil {
		return nil, err
	}
	if err := validation.ValidateProposal(p, now); err != nil {
		return nil, err
	}
	edge, _ := fireProposal(p, event)
	p.RejectReason = ""
	return notices(edge.Notices, teamNotice(p)), nil
}

// Approve accepts a pending proposal.
func Approve(p *models.Proposal, now time.Time) ([]Notice, error) {
	edge, err := fireProposal(p, contract.EventApprove)
	if err != nil {
		return nil, err
	}
	p.DateApproved = &now
	return notices(edge.Notices, teamNotice(p)), nil
}

// Reject sends a pending proposal back to its team with a reason.
func Reject(p *models.Proposal, reason string, now time.Time) ([]Notice, error) {
	if _, err := checkProposal(p, contract.EventReject); err != nil {
		return nil, err
	}
	if err := validation.RequireReason("rejectReason", reason); err != nil {
		return nil, err
	}
	edge, _ := fireProposal(p, contract.EventReject)
	p.RejectReason = reason
	n := teamNotice(p)
	n.Message = reason
	return notices(edge.Notices, n), nil
}

// Publish makes an approved proposal LIVE. funded picks WIP over
// FUNDING_REQUIRED. When the first milestone pays out immediately it is
// requested and accepted on the spot by actorID's publication; the returned
// history event records that payout.
func Publish(p *models.Proposal, actorID uint, funded bool, now time.Time) ([]Notice, *models.HistoryEvent, error) {
	event := contract.EventPublish
	if funded {
		event = contract.EventPublishFunded
	}
	edge, err := fireProposal(p, event)
	if err != nil {
		return nil, nil, err
	}
	p.DatePublished = &now
	out := notices(edge.Notices, teamNotice(p))

	first := ActiveMilestone(p)
	if first == nil || first.Index != 0 || !first.ImmediatePayout {
		return out, nil, nil
	}
	if _, err := RequestPayout(p, first.ID, actorID, now); err != nil {
		return nil, nil, err
	}
	accepted, history, err := AcceptPayout(p, first.ID, now)
	if err != nil {
		return nil, nil, err
	}
	return append(out, accepted...), history, nil
}

// Cancel stops a published proposal.
func Cancel(p *models.Proposal) ([]Notice, error) {
	edge, err := fireProposal(p, contract.EventCancel)
	if err != nil {
		return nil, err
	}
	return notices(edge.Notices, teamNotice(p)), nil
}

// MarkFunded records that a published proposal has its funding.
func MarkFunded(p *models.Proposal) error {
	_, err := fireProposal(p, contract.EventMarkFunded)
	return err
}

// Delete soft-deletes a draft or rejected proposal.
func Delete(p *models.Proposal) error {
	_, err := fireProposal(p, contract.EventDelete)
	return err
}

// SetPrivate toggles visibility.
func SetPrivate(p *models.Proposal, private bool) error {
	if _, err := fireProposal(p, contract.EventUpdatePrivate); err != nil {
		return err
	}
	p.Private = private
	return nil
}

// CheckFollow reports whether p can be followed in its current state.
func CheckFollow(p *models.Proposal) error {
	_, err := checkProposal(p, contract.EventFollow)
	return err
}

// Draft is the editable content of a proposal.
type Draft struct {
	Title      string
	Brief      string
	Content    string
	Category   contract.Category
	Target     decimal.Decimal
	Milestones []models.Milestone
}

// UpdateDraft replaces p's content and milestone set. Length limits are
// enforced now; completeness waits for submission.
func UpdateDraft(p *models.Proposal, d Draft) error {
	if _, err := checkProposal(p, contract.EventUpdateDraft); err != nil {
		return err
	}

	ve := &contract.ValidationError{}
	checkMax(ve, "title", d.Title, validation.MaxTitleLength)
	checkMax(ve, "brief", d.Brief, validation.MaxBriefLength)
	checkMax(ve, "content", d.Content, validation.MaxContentLength)
	if d.Category != "" && !d.Category.Valid() {
		ve.Add("category", "unknown category %q", d.Category)
	}
	if err := ve.Err(); err != nil {
		return err
	}

	p.Title = d.Title
	p.Brief = d.Brief
	p.Content = d.Content
	p.Category = d.Category
	p.Target = d.Target

	ms := make([]models.Milestone, len(d.Milestones))
	for i, m := range d.Milestones {
		ms[i] = models.Milestone{
			ProposalID:      p.ID,
			Index:           i,
			Title:           m.Title,
			Content:         m.Content,
			PayoutAmount:    m.PayoutAmount,
			ImmediatePayout: m.ImmediatePayout,
			DateEstimated:   m.DateEstimated,
			Stage:           contract.MilestoneIdle,
		}
	}
	p.Milestones = ms
	return nil
}

// AdminEdit lets an admin fix wording on a pending proposal. Payouts stay put.
func AdminEdit(p *models.Proposal, title, brief, content string, category contract.Category) error {
	if _, err := checkProposal(p, contract.EventAdminUpdate); err != nil {
		return err
	}
	edited := *p
	if title != "" {
		edited.Title = title
	}
	if brief != "" {
		edited.Brief = brief
	}
	if content != "" {
		edited.Content = content
	}
	if category != "" {
		edited.Category = category
	}
	if err := validation.ValidateAdminEdit(&edited); err != nil {
		return err
	}
	p.Title, p.Brief, p.Content, p.Category = edited.Title, edited.Brief, edited.Content, edited.Category
	return nil
}

func checkMax(ve *contract.ValidationError, field, value string, max int) {
	if n := len([]rune(value)); n > max {
		ve.Add(field, "must be at most %d characters, got %d", max, n)
	}
}
