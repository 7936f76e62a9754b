package lifecycle

import (
	"fmt"
	"time"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/validation"
	"github.com/grantflow/backend/pkg/contract"
)

// ActiveMilestone returns the lowest-index milestone that is not yet PAID,
// or nil when every milestone is paid.
func ActiveMilestone(p *models.Proposal) *models.Milestone {
	var active *models.Milestone
	for i := range p.Milestones {
		m := &p.Milestones[i]
		if m.Stage == contract.MilestonePaid {
			continue
		}
		if active == nil || m.Index < active.Index {
			active = m
		}
	}
	return active
}

func findMilestone(p *models.Proposal, milestoneID uint) (*models.Milestone, error) {
	for i := range p.Milestones {
		if p.Milestones[i].ID == milestoneID {
			return &p.Milestones[i], nil
		}
	}
	return nil, &contract.NotFoundError{Entity: "milestone", ID: milestoneID}
}

func invalidMilestone(m *models.Milestone, event contract.Event, reason string) error {
	return &contract.InvalidTransitionError{
		Machine: contract.MilestoneTable.Machine(),
		From:    string(m.Stage),
		Event:   event,
		Reason:  reason,
	}
}

// requireInProgress rejects milestone work on proposals that are not LIVE or
// whose stage has ended.
func requireInProgress(p *models.Proposal, m *models.Milestone, event contract.Event) error {
	if p.Status != contract.ProposalLive {
		return invalidMilestone(m, event, "proposal is not live")
	}
	if p.Stage.Terminal() {
		return invalidMilestone(m, event, fmt.Sprintf("proposal stage is %s", p.Stage))
	}
	return nil
}

func fireMilestone(m *models.Milestone, event contract.Event) (contract.Edge[contract.MilestoneStage], error) {
	edge, err := contract.MilestoneTable.Lookup(m.Stage, event)
	if err != nil {
		return edge, err
	}
	m.Stage = edge.To
	return edge, nil
}

func milestoneNotice(p *models.Proposal, m *models.Milestone) Notice {
	return Notice{ProposalID: p.ID, MilestoneID: m.ID, Recipients: p.TeamUserIDs()}
}

// RequestPayout asks admins to pay out the active milestone.
func RequestPayout(p *models.Proposal, milestoneID, userID uint, now time.Time) ([]Notice, error) {
	m, err := findMilestone(p, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(p, m, contract.EventRequestPayout); err != nil {
		return nil, err
	}
	if active := ActiveMilestone(p); active == nil || active.ID != m.ID {
		return nil, invalidMilestone(m, contract.EventRequestPayout, "not the active milestone")
	}
	edge, err := fireMilestone(m, contract.EventRequestPayout)
	if err != nil {
		return nil, err
	}
	m.DateRequested = &now
	if userID != 0 {
		uid := userID
		m.RequestedUserID = &uid
	}
	m.RejectReason = ""
	return notices(edge.Notices, milestoneNotice(p, m)), nil
}

// AcceptPayout approves a requested payout and returns the history event
// announcing it, nil for a zero payout.
func AcceptPayout(p *models.Proposal, milestoneID uint, now time.Time) ([]Notice, *models.HistoryEvent, error) {
	m, err := findMilestone(p, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireInProgress(p, m, contract.EventAcceptPayout); err != nil {
		return nil, nil, err
	}
	edge, err := fireMilestone(m, contract.EventAcceptPayout)
	if err != nil {
		return nil, nil, err
	}
	m.DateAccepted = &now
	return notices(edge.Notices, milestoneNotice(p, m)), payoutHistory(p, m, now), nil
}

// RejectPayout turns a payout request down. The reason replaces any earlier one.
func RejectPayout(p *models.Proposal, milestoneID uint, reason string, now time.Time) ([]Notice, error) {
	m, err := findMilestone(p, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(p, m, contract.EventRejectPayout); err != nil {
		return nil, err
	}
	if _, err := contract.MilestoneTable.Lookup(m.Stage, contract.EventRejectPayout); err != nil {
		return nil, err
	}
	if err := validation.RequireReason("reason", reason); err != nil {
		return nil, err
	}
	edge, _ := fireMilestone(m, contract.EventRejectPayout)
	m.RejectReason = reason
	m.DateRejected = &now
	n := milestoneNotice(p, m)
	n.Message = reason
	return notices(edge.Notices, n), nil
}

// MarkPaid records the transfer of an accepted payout. Paying the last
// milestone completes the proposal.
func MarkPaid(p *models.Proposal, milestoneID uint, txID string, now time.Time) ([]Notice, error) {
	m, err := findMilestone(p, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(p, m, contract.EventMarkPaid); err != nil {
		return nil, err
	}
	edge, err := fireMilestone(m, contract.EventMarkPaid)
	if err != nil {
		return nil, err
	}
	m.DatePaid = &now
	m.PaidTxID = txID

	if ActiveMilestone(p) == nil && contract.ProposalTable.Allowed(p.State(), contract.EventComplete) {
		if _, err := fireProposal(p, contract.EventComplete); err != nil {
			return nil, err
		}
	}
	n := milestoneNotice(p, m)
	n.Message = txID
	return notices(edge.Notices, n), nil
}

func payoutHistory(p *models.Proposal, m *models.Milestone, now time.Time) *models.HistoryEvent {
	if !m.PayoutAmount.IsPositive() {
		return nil
	}

	last := true
	for _, other := range p.Milestones {
		if other.Index > m.Index {
			last = false
			break
		}
	}

	var title string
	switch {
	case m.Index == 0 && m.ImmediatePayout:
		title = fmt.Sprintf("%s received an initial payout", p.Title)
	case last:
		title = fmt.Sprintf("%s received a final payout", p.Title)
	default:
		title = fmt.Sprintf("%s received a milestone payout", p.Title)
	}

	pid, mid := p.ID, m.ID
	return &models.HistoryEvent{
		Title:       title,
		Content:     fmt.Sprintf("Received %s for completing milestone %d: %s", m.PayoutAmount.String(), m.Index+1, m.Title),
		UserID:      m.RequestedUserID,
		ProposalID:  &pid,
		MilestoneID: &mid,
		Date:        now,
	}
}
