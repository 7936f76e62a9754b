package lifecycle

import (
	"testing"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/shopspring/decimal"
)

func liveRFW(t *testing.T) *models.RFW {
	t.Helper()
	r := &models.RFW{
		ID:     5,
		Title:  "Indexer",
		Status: contract.RFWDraft,
		Milestones: []models.RFWMilestone{
			{ID: 50, RFWID: 5, Index: 0, Title: "Schema", Bounty: decimal.NewFromInt(100)},
		},
	}
	if err := PublishRFW(r, now); err != nil {
		t.Fatalf("PublishRFW: %v", err)
	}
	return r
}

func TestRFWStatus(t *testing.T) {
	r := liveRFW(t)
	if r.Status != contract.RFWLive || r.StatusChangeDate == nil {
		t.Errorf("unexpected rfw %s", r.Status)
	}
	if err := PublishRFW(r, now); !contract.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
	if err := CloseRFW(r, now); err != nil || r.Status != contract.RFWClosed {
		t.Errorf("CloseRFW: %v", err)
	}
}

func TestWorkerRoster(t *testing.T) {
	r := liveRFW(t)

	w, ns, err := RequestWork(r, 9, "I can do this", now)
	if err != nil {
		t.Fatalf("RequestWork: %v", err)
	}
	if w.Status != contract.WorkerRequested || len(r.Workers) != 1 {
		t.Errorf("unexpected worker %+v", w)
	}
	if ns[0].Kind != contract.NoticeAdminWorkerRequest {
		t.Errorf("unexpected notices %v", kinds(ns))
	}
	r.Workers[0].ID = 90

	if _, _, err := RequestWork(r, 9, "again", now); !contract.IsInvalidTransition(err) {
		t.Errorf("pending worker cannot request again, got %v", err)
	}

	w, ns, err = ReviewWorker(r, 90, false, "need more detail", now)
	if err != nil {
		t.Fatalf("ReviewWorker: %v", err)
	}
	if w.Status != contract.WorkerRejected || w.StatusMessage != "need more detail" {
		t.Errorf("unexpected worker %+v", w)
	}
	if ns[0].Kind != contract.NoticeWorkerRejected || ns[0].Recipients[0] != 9 {
		t.Errorf("unexpected notice %+v", ns[0])
	}

	w, _, err = RequestWork(r, 9, "more detail attached", now)
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if w.Status != contract.WorkerRequested || len(r.Workers) != 1 {
		t.Errorf("re-request must reset the same row, got %d rows", len(r.Workers))
	}

	if _, _, err := ReviewWorker(r, 90, true, "welcome", now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, _, err := RequestWork(r, 9, "again", now); !contract.IsInvalidTransition(err) {
		t.Errorf("accepted worker cannot request again, got %v", err)
	}
	if _, _, err := ReviewWorker(r, 90, false, "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("accepted worker cannot be reviewed again, got %v", err)
	}
	if _, _, err := ReviewWorker(r, 404, true, "", now); !contract.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestRequestWork_BountyNotLive(t *testing.T) {
	r := &models.RFW{Status: contract.RFWDraft}
	if _, _, err := RequestWork(r, 9, "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
	if len(r.Workers) != 0 {
		t.Error("no row may be created")
	}
}

func acceptedWorker(t *testing.T, r *models.RFW, userID, workerID uint) {
	t.Helper()
	if _, _, err := RequestWork(r, userID, "", now); err != nil {
		t.Fatal(err)
	}
	r.Workers[len(r.Workers)-1].ID = workerID
	if _, _, err := ReviewWorker(r, workerID, true, "", now); err != nil {
		t.Fatal(err)
	}
}

func TestClaims_TwoWorkersOneMilestone(t *testing.T) {
	r := liveRFW(t)
	acceptedWorker(t, r, 1, 91)
	acceptedWorker(t, r, 2, 92)

	a, ns, err := Claim(r, 50, 91, "done", "https://example.com/pr/1", now)
	if err != nil {
		t.Fatalf("Claim A: %v", err)
	}
	if ns[0].Kind != contract.NoticeAdminWorkMilestoneClaim {
		t.Errorf("unexpected notices %v", kinds(ns))
	}
	a.ID = 501
	b, _, err := Claim(r, 50, 92, "also done", "", now)
	if err != nil {
		t.Fatalf("Claim B: %v", err)
	}
	b.ID = 502

	if _, _, err := Claim(r, 50, 91, "dup", "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("duplicate pending claim must fail, got %v", err)
	}

	if _, _, err := ReviewClaim(r, 50, 501, true, "great", now); err != nil {
		t.Fatalf("accept A: %v", err)
	}
	if !r.Milestones[0].Closed {
		t.Fatal("accepting a claim closes the milestone")
	}
	if _, _, err := ReviewClaim(r, 50, 502, true, "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("second accept must fail, got %v", err)
	}
	c, ns, err := ReviewClaim(r, 50, 502, false, "already done by someone else", now)
	if err != nil {
		t.Fatalf("reject B: %v", err)
	}
	if c.Stage != contract.ClaimRejected || ns[0].Recipients[0] != 2 {
		t.Errorf("unexpected claim %+v notice %+v", c, ns[0])
	}
	if _, _, err := Claim(r, 50, 92, "retry", "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("closed milestone takes no claims, got %v", err)
	}
}

func TestClaim_Preconditions(t *testing.T) {
	r := liveRFW(t)
	if _, _, err := RequestWork(r, 3, "", now); err != nil {
		t.Fatal(err)
	}
	r.Workers[0].ID = 93

	if _, _, err := Claim(r, 50, 93, "", "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("unaccepted worker cannot claim, got %v", err)
	}
	if _, _, err := Claim(r, 404, 93, "", "", now); !contract.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if _, _, err := ReviewWorker(r, 93, true, "", now); err != nil {
		t.Fatal(err)
	}
	if err := CloseRFW(r, now); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Claim(r, 50, 93, "", "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("closed bounty takes no claims, got %v", err)
	}
}

func TestClaim_ResubmitAfterRejection(t *testing.T) {
	r := liveRFW(t)
	acceptedWorker(t, r, 1, 91)

	c, _, err := Claim(r, 50, 91, "v1", "", now)
	if err != nil {
		t.Fatal(err)
	}
	c.ID = 601
	if _, _, err := ReviewClaim(r, 50, 601, false, "incomplete", now); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Claim(r, 50, 91, "v2", "", now); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if n := len(r.Milestones[0].Claims); n != 2 {
		t.Errorf("claims are append-only, expected 2 rows, got %d", n)
	}
}
