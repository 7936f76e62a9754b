// Package authz decides whether an actor may fire a transition. Role checks
// need no state and run before anything is loaded; ownership checks run on the
// loaded aggregate.
package authz

import (
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
)

// Actor is whoever triggers an operation.
type Actor struct {
	UserID uint
	Role   string // account role: admin or user
	System bool   // engine-initiated follow-up transitions
}

// System is the actor the engine uses for its own follow-up transitions.
var System = Actor{System: true}

// Anonymous is an unauthenticated caller.
var Anonymous = Actor{}

func User(id uint, role string) Actor {
	return Actor{UserID: id, Role: role}
}

func (a Actor) Authenticated() bool { return a.System || a.UserID != 0 }

func (a Actor) IsAdmin() bool { return a.Role == string(contract.RoleAdmin) }

// ID returns a pointer to the user id for audit rows, nil for system and anonymous.
func (a Actor) ID() *uint {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// RequireRole checks the state-independent part of a transition role.
// Team and worker roles only require a signed-in user here; their ownership
// part is checked by RequireTeam and RequireWorkerOwner.
func RequireRole(a Actor, role contract.Role, action string) error {
	if a.System {
		return nil
	}
	if !a.Authenticated() {
		return &contract.ForbiddenError{Action: action, Reason: "authentication required"}
	}
	switch role {
	case contract.RoleAdmin:
		if !a.IsAdmin() {
			return &contract.ForbiddenError{Action: action, Reason: "admin role required"}
		}
	case contract.RoleSystem:
		return &contract.ForbiddenError{Action: action, Reason: "system transition"}
	}
	return nil
}

// RequireEvent looks up the role event needs in t and checks it.
func RequireEvent[S comparable](a Actor, t *contract.Table[S], event contract.Event) error {
	role, ok := t.RoleOf(event)
	if !ok {
		return &contract.InvalidTransitionError{Machine: t.Machine(), From: "*", Event: event, Reason: "unknown event"}
	}
	return RequireRole(a, role, string(event))
}

// RequireTeam checks that a is on the proposal team. Admins get no bypass.
func RequireTeam(a Actor, p *models.Proposal, action string) error {
	if a.System {
		return nil
	}
	if a.UserID == 0 || !p.IsTeamMember(a.UserID) {
		return &contract.ForbiddenError{Action: action, Reason: "not a member of the proposal team"}
	}
	return nil
}

// RequireWorkerOwner checks that worker belongs to a.
func RequireWorkerOwner(a Actor, w *models.RFWWorker, action string) error {
	if a.System {
		return nil
	}
	if a.UserID == 0 || w.UserID != a.UserID {
		return &contract.ForbiddenError{Action: action, Reason: "worker belongs to another user"}
	}
	return nil
}

// CanViewProposal reports whether a may read p. Deleted proposals are
// never visible; unpublished or private ones only to the team and admins.
func CanViewProposal(a Actor, p *models.Proposal) bool {
	if p.Status == contract.ProposalDeleted {
		return false
	}
	if p.Status == contract.ProposalLive && !p.Private {
		return true
	}
	return a.System || a.IsAdmin() || (a.UserID != 0 && p.IsTeamMember(a.UserID))
}

// CanViewRFW reports whether a may read r. Drafts are admin-only.
func CanViewRFW(a Actor, r *models.RFW) bool {
	return r.Status != contract.RFWDraft || a.System || a.IsAdmin()
}
