package lifecycle

import (
	"testing"

	"github.com/grantflow/backend/pkg/contract"
)

func activeCount(t *testing.T, stages ...contract.MilestoneStage) int {
	t.Helper()
	n := 0
	for _, s := range stages {
		if s == contract.MilestoneRequested || s == contract.MilestoneAccepted {
			n++
		}
	}
	return n
}

func TestPayoutPipeline_TwoMilestones(t *testing.T) {
	p := liveProposal(t, true)
	first, second := p.Milestones[0].ID, p.Milestones[1].ID

	if _, err := RequestPayout(p, second, 7, now); !contract.IsInvalidTransition(err) {
		t.Fatalf("only the active milestone can be requested, got %v", err)
	}

	ns, err := RequestPayout(p, first, 7, now)
	if err != nil {
		t.Fatalf("RequestPayout: %v", err)
	}
	if ns[0].Kind != contract.NoticeAdminPayout {
		t.Errorf("unexpected notices %v", kinds(ns))
	}
	if n := activeCount(t, p.Milestones[0].Stage, p.Milestones[1].Stage); n != 1 {
		t.Errorf("expected one active milestone, got %d", n)
	}

	if _, _, err := AcceptPayout(p, first, now); err != nil {
		t.Fatalf("AcceptPayout: %v", err)
	}
	if _, err := RequestPayout(p, second, 7, now); !contract.IsInvalidTransition(err) {
		t.Fatalf("second milestone waits for the first to be paid, got %v", err)
	}
	ns, err = MarkPaid(p, first, "0xabc", now)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	got := kinds(ns)
	if len(got) != 2 || got[0] != contract.NoticeMilestonePaid || got[1] != contract.NoticeFollowedProposalMilestone {
		t.Errorf("unexpected notices %v", got)
	}
	if p.Milestones[0].PaidTxID != "0xabc" || p.Milestones[0].DatePaid == nil {
		t.Error("payment details not recorded")
	}
	if p.Stage != contract.StageWIP {
		t.Errorf("stage must stay WIP until the last payout, got %s", p.Stage)
	}
	if ActiveMilestone(p).ID != second {
		t.Error("second milestone should now be active")
	}

	if _, err := RequestPayout(p, second, 7, now); err != nil {
		t.Fatalf("RequestPayout second: %v", err)
	}
	_, history, err := AcceptPayout(p, second, now)
	if err != nil {
		t.Fatalf("AcceptPayout second: %v", err)
	}
	if history == nil || history.Title != "Hoon LSP received a final payout" {
		t.Errorf("unexpected history %+v", history)
	}
	if _, err := MarkPaid(p, second, "", now); err != nil {
		t.Fatalf("MarkPaid second: %v", err)
	}
	if p.Stage != contract.StageCompleted {
		t.Errorf("expected COMPLETED, got %s", p.Stage)
	}
	if ActiveMilestone(p) != nil {
		t.Error("no milestone should be active")
	}
}

func TestPayoutPipeline_RejectThenRerequest(t *testing.T) {
	p := liveProposal(t, true)
	id := p.Milestones[0].ID

	if _, err := RejectPayout(p, id, "too early", now); !contract.IsInvalidTransition(err) {
		t.Fatalf("idle milestone cannot be rejected, got %v", err)
	}
	if _, err := RequestPayout(p, id, 7, now); err != nil {
		t.Fatal(err)
	}
	if _, err := RejectPayout(p, id, " ", now); !contract.IsValidation(err) {
		t.Fatalf("blank reason must fail, got %v", err)
	}
	ns, err := RejectPayout(p, id, "missing demo", now)
	if err != nil {
		t.Fatalf("RejectPayout: %v", err)
	}
	m := p.Milestones[0]
	if m.Stage != contract.MilestoneRejected || m.RejectReason != "missing demo" || m.DateRejected == nil {
		t.Errorf("unexpected milestone %+v", m)
	}
	if ns[0].Kind != contract.NoticeMilestoneReject || ns[0].Message != "missing demo" {
		t.Errorf("unexpected notice %+v", ns[0])
	}

	if _, err := RequestPayout(p, id, 7, now); err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if p.Milestones[0].RejectReason != "" || p.Milestones[0].DateRejected == nil {
		t.Error("re-request clears the reason but keeps the rejection date")
	}
}

func TestPayoutPipeline_ProposalNotInProgress(t *testing.T) {
	p := liveProposal(t, true)
	if _, err := Cancel(p); err != nil {
		t.Fatal(err)
	}
	if _, err := RequestPayout(p, p.Milestones[0].ID, 7, now); !contract.IsInvalidTransition(err) {
		t.Errorf("canceled proposal cannot request payouts, got %v", err)
	}

	accepted := liveProposal(t, true)
	acceptedID := accepted.Milestones[0].ID
	if _, err := RequestPayout(accepted, acceptedID, 7, now); err != nil {
		t.Fatal(err)
	}
	if _, _, err := AcceptPayout(accepted, acceptedID, now); err != nil {
		t.Fatal(err)
	}
	if _, err := Cancel(accepted); err != nil {
		t.Fatal(err)
	}
	if _, err := MarkPaid(accepted, acceptedID, "0xabc", now); !contract.IsInvalidTransition(err) {
		t.Errorf("canceled proposal cannot be paid out, got %v", err)
	}
	if got := accepted.Milestones[0].Stage; got != contract.MilestoneAccepted {
		t.Errorf("milestone stage = %s, expected ACCEPTED", got)
	}

	requested := liveProposal(t, true)
	requestedID := requested.Milestones[0].ID
	if _, err := RequestPayout(requested, requestedID, 7, now); err != nil {
		t.Fatal(err)
	}
	if _, err := Cancel(requested); err != nil {
		t.Fatal(err)
	}
	if _, err := RejectPayout(requested, requestedID, "late", now); !contract.IsInvalidTransition(err) {
		t.Errorf("canceled proposal cannot reject payouts, got %v", err)
	}
	if got := requested.Milestones[0].Stage; got != contract.MilestoneRequested {
		t.Errorf("milestone stage = %s, expected REQUESTED", got)
	}

	draft := proposal()
	if _, err := RequestPayout(draft, draft.Milestones[0].ID, 7, now); !contract.IsInvalidTransition(err) {
		t.Errorf("draft cannot request payouts, got %v", err)
	}
}

func TestPayoutPipeline_UnknownMilestone(t *testing.T) {
	p := liveProposal(t, true)
	if _, err := RequestPayout(p, 404, 7, now); !contract.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestMarkPaid_OnlyFromAccepted(t *testing.T) {
	p := liveProposal(t, true)
	id := p.Milestones[0].ID
	if _, err := MarkPaid(p, id, "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError, got %v", err)
	}
	if _, err := RequestPayout(p, id, 7, now); err != nil {
		t.Fatal(err)
	}
	if _, err := MarkPaid(p, id, "", now); !contract.IsInvalidTransition(err) {
		t.Errorf("requested milestone cannot be paid, got %v", err)
	}
}

func TestAcceptPayout_MiddleMilestoneHistory(t *testing.T) {
	p := proposal()
	extra := p.Milestones[1]
	extra.ID = 13
	extra.Index = 2
	p.Milestones = append(p.Milestones, extra)
	p.Status, p.Stage = contract.ProposalLive, contract.StageWIP
	p.Milestones[0].Stage = contract.MilestonePaid
	p.Milestones[1].Stage = contract.MilestoneRequested

	_, history, err := AcceptPayout(p, 12, now)
	if err != nil {
		t.Fatal(err)
	}
	if history == nil || history.Title != "Hoon LSP received a milestone payout" {
		t.Errorf("unexpected history %+v", history)
	}
}
