package lifecycle

import (
	"time"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
)

func invalidClaim(from contract.ClaimStage, event contract.Event, reason string) error {
	return &contract.InvalidTransitionError{
		Machine: contract.ClaimTable.Machine(),
		From:    stateLabel(string(from)),
		Event:   event,
		Reason:  reason,
	}
}

// Claim records that an accepted worker finished a bounty milestone. Each
// call appends a new claim row.
func Claim(r *models.RFW, milestoneID, workerID uint, message, url string, now time.Time) (*models.RFWMilestoneClaim, []Notice, error) {
	m := r.Milestone(milestoneID)
	if m == nil {
		return nil, nil, &contract.NotFoundError{Entity: "rfw_milestone", ID: milestoneID}
	}
	w := r.Worker(workerID)
	if w == nil {
		return nil, nil, &contract.NotFoundError{Entity: "rfw_worker", ID: workerID}
	}

	if err := requireLive(r, contract.ClaimTable.Machine(), "NONE", contract.EventClaim); err != nil {
		return nil, nil, err
	}
	if w.Status != contract.WorkerAccepted {
		return nil, nil, invalidClaim(contract.ClaimNone, contract.EventClaim, "worker is not accepted")
	}
	if m.Closed {
		return nil, nil, invalidClaim(contract.ClaimNone, contract.EventClaim, "milestone is closed")
	}
	for _, c := range m.Claims {
		if c.WorkerID == workerID && c.Stage == contract.ClaimRequested {
			return nil, nil, invalidClaim(contract.ClaimNone, contract.EventClaim, "a claim by this worker is already pending")
		}
	}

	edge, err := contract.ClaimTable.Lookup(contract.ClaimNone, contract.EventClaim)
	if err != nil {
		return nil, nil, err
	}
	m.Claims = append(m.Claims, models.RFWMilestoneClaim{
		MilestoneID:     m.ID,
		WorkerID:        workerID,
		Stage:           edge.To,
		StageMessage:    message,
		StageURL:        url,
		StageChangeDate: &now,
	})
	claim := &m.Claims[len(m.Claims)-1]

	n := Notice{RFWID: r.ID, MilestoneID: m.ID, WorkerID: workerID, Message: message}
	return claim, notices(edge.Notices, n), nil
}

// ReviewClaim accepts or rejects a pending claim. Accepting closes the
// milestone, so a second claim on it can only be rejected.
func ReviewClaim(r *models.RFW, milestoneID, claimID uint, accept bool, message string, now time.Time) (*models.RFWMilestoneClaim, []Notice, error) {
	m := r.Milestone(milestoneID)
	if m == nil {
		return nil, nil, &contract.NotFoundError{Entity: "rfw_milestone", ID: milestoneID}
	}
	c := m.Claim(claimID)
	if c == nil {
		return nil, nil, &contract.NotFoundError{Entity: "rfw_milestone_claim", ID: claimID}
	}

	event := contract.EventRejectClaim
	if accept {
		event = contract.EventAcceptClaim
	}
	edge, err := contract.ClaimTable.Lookup(c.Stage, event)
	if err != nil {
		return nil, nil, err
	}
	if accept {
		if m.Closed {
			return nil, nil, invalidClaim(c.Stage, event, "milestone is closed")
		}
		m.Closed = true
	}
	c.Stage = edge.To
	c.StageMessage = message
	c.StageChangeDate = &now

	n := Notice{RFWID: r.ID, MilestoneID: m.ID, WorkerID: c.WorkerID, ClaimID: c.ID, Message: message}
	if w := r.Worker(c.WorkerID); w != nil {
		n.Recipients = []uint{w.UserID}
	}
	return c, notices(edge.Notices, n), nil
}
