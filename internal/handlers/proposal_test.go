package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/contract"
)

func TestProposal_PayoutOverHTTP(t *testing.T) {
	s := newTestServer(t)
	p := s.liveProposal()
	if p.Stage != contract.StageFundingRequired {
		t.Fatalf("stage after publish = %s", p.Stage)
	}
	base := "/api/v1/proposals/" + itoa(p.ID)
	s.must(http.StatusOK, "PUT", base+"/funded", s.admin, nil, p)
	if p.Stage != contract.StageWIP {
		t.Fatalf("stage after funding = %s", p.Stage)
	}

	var ids []uint
	for _, ms := range p.Milestones {
		ids = append(ids, ms.ID)
	}
	for _, msID := range ids {
		msPath := base + "/milestone/" + itoa(msID)
		s.must(http.StatusOK, "PUT", msPath+"/request", s.user, nil, nil)
		s.must(http.StatusOK, "PUT", msPath+"/accept", s.admin, nil, nil)
		s.must(http.StatusOK, "PUT", msPath+"/paid", s.admin, map[string]string{"txId": "0xabc"}, p)
	}
	if p.Stage != contract.StageCompleted {
		t.Errorf("stage = %s, expected COMPLETED", p.Stage)
	}

	var stats services.DashboardResponse
	s.must(http.StatusOK, "GET", "/api/v1/admin/stats", s.admin, nil, &stats)
	if stats.Stats.PaidMilestones != 2 || !stats.Stats.PaidOut.Equal(p.Target) {
		t.Errorf("stats paid = %d / %s, expected 2 / %s", stats.Stats.PaidMilestones, stats.Stats.PaidOut, p.Target)
	}
	if code, _ := s.do("GET", "/api/v1/admin/stats", s.user, nil); code != http.StatusForbidden {
		t.Errorf("user stats = %d, expected 403", code)
	}

	var logs []models.SystemLog
	s.db.Where("module = ?", "admin").Order("id").Find(&logs)
	actions := make([]string, len(logs))
	for i, l := range logs {
		actions[i] = l.Action
	}
	joined := strings.Join(actions, ",")
	for _, want := range []string{"PROPOSAL_APPROVE", "PROPOSAL_FUNDED", "MILESTONE_ACCEPT", "MILESTONE_PAID"} {
		if !strings.Contains(joined, want) {
			t.Errorf("audit log %v missing %s", actions, want)
		}
	}
	if strings.Contains(joined, "MILESTONE_REQUEST") {
		t.Errorf("non-admin write was audited: %v", actions)
	}
}

func TestProposal_ErrorStatus(t *testing.T) {
	s := newTestServer(t)
	var draft models.Proposal
	s.must(http.StatusCreated, "POST", "/api/v1/proposals/drafts", s.user, nil, &draft)
	draftPath := "/api/v1/proposals/" + itoa(draft.ID)
	live := s.liveProposal()
	livePath := "/api/v1/proposals/" + itoa(live.ID)
	var pending models.Proposal
	s.must(http.StatusCreated, "POST", "/api/v1/proposals/drafts", s.user, nil, &pending)
	pendingPath := "/api/v1/proposals/" + itoa(pending.ID)
	s.must(http.StatusOK, "PUT", pendingPath, s.user, draftBody(), nil)
	s.must(http.StatusOK, "PUT", pendingPath+"/submit_for_approval", s.user, nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
		kind   string
	}{
		{"no token", "PUT", draftPath + "/submit_for_approval", "", nil, 401, ""},
		{"bad id", "GET", "/api/v1/proposals/abc", s.user, nil, 400, ""},
		{"incomplete draft", "PUT", draftPath + "/submit_for_approval", s.user, nil, 400, "validation"},
		{"not on team", "PUT", draftPath + "/submit_for_approval", s.other, nil, 404, "not_found"},
		{"user approves", "PUT", livePath + "/approve", s.user, map[string]bool{"isApprove": true}, 403, "forbidden"},
		{"approve live", "PUT", livePath + "/approve", s.admin, map[string]bool{"isApprove": true}, 409, "invalid_transition"},
		{"reject without reason", "PUT", pendingPath + "/approve", s.admin, map[string]bool{"isApprove": false}, 400, "validation"},
		{"unknown proposal", "GET", "/api/v1/proposals/999", s.admin, nil, 404, "not_found"},
		{"anonymous draft", "GET", draftPath, "", nil, 404, "not_found"},
		{"malformed body", "PUT", livePath + "/follow", s.other, "not an object", 400, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(tt.method, tt.path, tt.token, tt.body)
			if code != tt.status {
				t.Errorf("status = %d (%s), expected %d", code, env.Message, tt.status)
			}
			if env.Kind != tt.kind {
				t.Errorf("kind = %q, expected %q", env.Kind, tt.kind)
			}
		})
	}
}

func TestProposal_ValidationListsFields(t *testing.T) {
	s := newTestServer(t)
	var draft models.Proposal
	s.must(http.StatusCreated, "POST", "/api/v1/proposals/drafts", s.user, nil, &draft)

	code, env := s.do("PUT", "/api/v1/proposals/"+itoa(draft.ID)+"/submit_for_approval", s.user, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d", code)
	}
	for _, field := range []string{`"title"`, `"milestones"`, `"target"`} {
		if !strings.Contains(string(env.Data), field) {
			t.Errorf("data %s missing %s", env.Data, field)
		}
	}
}

func TestProposal_GetReportsActionsAndFollowers(t *testing.T) {
	s := newTestServer(t)
	p := s.liveProposal()
	path := "/api/v1/proposals/" + itoa(p.ID)

	for i := 0; i < 2; i++ {
		s.must(http.StatusOK, "PUT", path+"/follow", s.other, map[string]bool{"isFollow": true}, nil)
	}

	var got struct {
		Proposal models.Proposal `json:"proposal"`
		Actions  []string        `json:"actions"`
	}
	s.must(http.StatusOK, "GET", path, s.other, nil, &got)
	if got.Proposal.FollowersCount != 1 || !got.Proposal.IsFollowed {
		t.Errorf("followers = %d followed = %v, expected 1 true", got.Proposal.FollowersCount, got.Proposal.IsFollowed)
	}
	if len(got.Actions) == 0 {
		t.Error("expected available actions for a live proposal")
	}

	s.must(http.StatusOK, "GET", path, "", nil, &got)
	if got.Proposal.IsFollowed {
		t.Error("anonymous reader reported as follower")
	}
}

func TestProposal_TransitionResponseCarriesFollowers(t *testing.T) {
	s := newTestServer(t)
	p := s.liveProposal()
	path := "/api/v1/proposals/" + itoa(p.ID)
	s.must(http.StatusOK, "PUT", path+"/follow", s.other, map[string]bool{"isFollow": true}, nil)

	var canceled models.Proposal
	s.must(http.StatusOK, "PUT", path+"/cancel", s.admin, nil, &canceled)
	if canceled.Stage != contract.StageCanceled || canceled.FollowersCount != 1 {
		t.Errorf("cancel response stage=%s followersCount=%d, expected CANCELED 1", canceled.Stage, canceled.FollowersCount)
	}
}
