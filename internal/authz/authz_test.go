package authz

import (
	"testing"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
)

var (
	admin  = User(1, "admin")
	member = User(2, "user")
	other  = User(3, "user")
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		role    contract.Role
		allowed bool
	}{
		{"admin as admin", admin, contract.RoleAdmin, true},
		{"user as admin", member, contract.RoleAdmin, false},
		{"anonymous as user", Anonymous, contract.RoleUser, false},
		{"user as user", member, contract.RoleUser, true},
		{"user as team", member, contract.RoleTeam, true},
		{"admin as system", admin, contract.RoleSystem, false},
		{"system as admin", System, contract.RoleAdmin, true},
		{"system as system", System, contract.RoleSystem, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireRole(tt.actor, tt.role, "test")
			if tt.allowed && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.allowed && !contract.IsForbidden(err) {
				t.Errorf("expected ForbiddenError, got %v", err)
			}
		})
	}
}

func TestRequireEvent(t *testing.T) {
	if err := RequireEvent(member, contract.ProposalTable, contract.EventApprove); !contract.IsForbidden(err) {
		t.Errorf("non-admin approve must be forbidden, got %v", err)
	}
	if err := RequireEvent(admin, contract.ProposalTable, contract.EventApprove); err != nil {
		t.Errorf("admin approve: %v", err)
	}
	if err := RequireEvent(admin, contract.ProposalTable, "bogus"); !contract.IsInvalidTransition(err) {
		t.Errorf("unknown event must be an invalid transition, got %v", err)
	}
}

func TestRequireTeam(t *testing.T) {
	p := &models.Proposal{Team: []models.ProposalMember{{UserID: member.UserID}}}
	if err := RequireTeam(member, p, "submit"); err != nil {
		t.Errorf("member: %v", err)
	}
	if err := RequireTeam(other, p, "submit"); !contract.IsForbidden(err) {
		t.Errorf("outsider must be forbidden, got %v", err)
	}
	if err := RequireTeam(admin, p, "submit"); !contract.IsForbidden(err) {
		t.Errorf("admin is not implicitly on the team, got %v", err)
	}
	if err := RequireTeam(System, p, "complete"); err != nil {
		t.Errorf("system: %v", err)
	}
}

func TestRequireWorkerOwner(t *testing.T) {
	w := &models.RFWWorker{UserID: member.UserID}
	if err := RequireWorkerOwner(member, w, "claim"); err != nil {
		t.Errorf("owner: %v", err)
	}
	if err := RequireWorkerOwner(other, w, "claim"); !contract.IsForbidden(err) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
}

func TestCanViewProposal(t *testing.T) {
	team := []models.ProposalMember{{UserID: member.UserID}}
	tests := []struct {
		name  string
		p     models.Proposal
		actor Actor
		want  bool
	}{
		{"public live", models.Proposal{Status: contract.ProposalLive}, Anonymous, true},
		{"private live outsider", models.Proposal{Status: contract.ProposalLive, Private: true, Team: team}, other, false},
		{"private live member", models.Proposal{Status: contract.ProposalLive, Private: true, Team: team}, member, true},
		{"draft outsider", models.Proposal{Status: contract.ProposalDraft, Team: team}, other, false},
		{"pending admin", models.Proposal{Status: contract.ProposalPending, Team: team}, admin, true},
		{"deleted member", models.Proposal{Status: contract.ProposalDeleted, Team: team}, member, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanViewProposal(tt.actor, &tt.p); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCanViewRFW(t *testing.T) {
	draft := &models.RFW{Status: contract.RFWDraft}
	if CanViewRFW(member, draft) {
		t.Error("drafts are admin-only")
	}
	if !CanViewRFW(admin, draft) {
		t.Error("admin sees drafts")
	}
	if !CanViewRFW(Anonymous, &models.RFW{Status: contract.RFWLive}) {
		t.Error("live bounties are public")
	}
}
