// Package lifecycle applies transitions to in-memory aggregates. Functions
// here never touch storage; they mutate the aggregate they are given and
// return the notices the caller must dispatch after the write commits.
package lifecycle

import (
	"github.com/grantflow/backend/pkg/contract"
)

// Notice is a notification produced by a transition. Recipients is filled
// for team and worker audiences; admins and followers are resolved by the
// notifier from Kind.
type Notice struct {
	Kind        contract.NoticeKind `json:"kind"`
	ProposalID  uint                `json:"proposalId,omitempty"`
	MilestoneID uint                `json:"milestoneId,omitempty"`
	RFWID       uint                `json:"rfwId,omitempty"`
	WorkerID    uint                `json:"workerId,omitempty"`
	ClaimID     uint                `json:"claimId,omitempty"`
	Version     uint                `json:"version,omitempty"`
	Recipients  []uint              `json:"recipients,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// Stamp sets the aggregate version the notices were committed at, so a
// repeated transition reads as a new notice.
func Stamp(ns []Notice, version uint) {
	for i := range ns {
		ns[i].Version = version
	}
}

func notices(kinds []contract.NoticeKind, base Notice) []Notice {
	out := make([]Notice, 0, len(kinds))
	for _, k := range kinds {
		n := base
		n.Kind = k
		if k.Audience() == "admins" || k.Audience() == "followers" {
			n.Recipients = nil
		}
		out = append(out, n)
	}
	return out
}
