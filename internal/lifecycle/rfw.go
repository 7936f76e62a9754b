package lifecycle

import (
	"time"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
)

// PublishRFW opens a draft bounty for workers.
func PublishRFW(r *models.RFW, now time.Time) error {
	return fireRFW(r, contract.EventPublish, now)
}

// CloseRFW stops a live bounty from taking new requests and claims.
func CloseRFW(r *models.RFW, now time.Time) error {
	return fireRFW(r, contract.EventClose, now)
}

func fireRFW(r *models.RFW, event contract.Event, now time.Time) error {
	edge, err := contract.RFWTable.Lookup(r.Status, event)
	if err != nil {
		return err
	}
	r.Status = edge.To
	r.StatusChangeDate = &now
	return nil
}

func requireLive(r *models.RFW, machine string, from string, event contract.Event) error {
	if r.Status != contract.RFWLive {
		return &contract.InvalidTransitionError{Machine: machine, From: from, Event: event, Reason: "bounty is " + string(r.Status)}
	}
	return nil
}

// RequestWork creates or resets userID's worker row on a live bounty and
// returns it. A rejected worker may ask again; anyone else already on the
// roster may not.
func RequestWork(r *models.RFW, userID uint, message string, now time.Time) (*models.RFWWorker, []Notice, error) {
	w := r.WorkerByUser(userID)
	from := contract.WorkerNone
	if w != nil {
		from = w.Status
	}
	if err := requireLive(r, contract.WorkerTable.Machine(), stateLabel(string(from)), contract.EventRequestWork); err != nil {
		return nil, nil, err
	}
	edge, err := contract.WorkerTable.Lookup(from, contract.EventRequestWork)
	if err != nil {
		return nil, nil, err
	}

	if w == nil {
		r.Workers = append(r.Workers, models.RFWWorker{RFWID: r.ID, UserID: userID})
		w = &r.Workers[len(r.Workers)-1]
	}
	w.Status = edge.To
	w.StatusMessage = message
	w.StatusChangeDate = &now

	return w, notices(edge.Notices, Notice{RFWID: r.ID, WorkerID: w.ID, Message: message}), nil
}

// ReviewWorker accepts or rejects a pending worker request.
func ReviewWorker(r *models.RFW, workerID uint, accept bool, message string, now time.Time) (*models.RFWWorker, []Notice, error) {
	w := r.Worker(workerID)
	if w == nil {
		return nil, nil, &contract.NotFoundError{Entity: "rfw_worker", ID: workerID}
	}
	event := contract.EventRejectWorker
	if accept {
		event = contract.EventAcceptWorker
	}
	edge, err := contract.WorkerTable.Lookup(w.Status, event)
	if err != nil {
		return nil, nil, err
	}
	w.Status = edge.To
	w.StatusMessage = message
	w.StatusChangeDate = &now

	n := Notice{RFWID: r.ID, WorkerID: w.ID, Recipients: []uint{w.UserID}, Message: message}
	return w, notices(edge.Notices, n), nil
}

func stateLabel(s string) string {
	if s == "" {
		return "NONE"
	}
	return s
}
