package contract

import (
	"fmt"
)

// Event names a transition trigger.
type Event string

const (
	EventSubmit        Event = "submit_for_approval"
	EventApprove       Event = "approve"
	EventReject        Event = "reject"
	EventPublish       Event = "publish"
	EventPublishFunded Event = "publish_funded"
	EventResubmit      Event = "resubmit"
	EventCancel        Event = "cancel"
	EventDelete        Event = "delete"
	EventMarkFunded    Event = "mark_funded"
	EventComplete      Event = "complete"
	EventUpdatePrivate Event = "update_private"
	EventUpdateDraft   Event = "update_draft"
	EventAdminUpdate   Event = "admin_update"
	EventFollow        Event = "follow"

	EventRequestPayout Event = "request_payout"
	EventAcceptPayout  Event = "accept_payout"
	EventRejectPayout  Event = "reject_payout"
	EventMarkPaid      Event = "mark_paid"

	EventRequestWork  Event = "request_work"
	EventAcceptWorker Event = "accept_worker"
	EventRejectWorker Event = "reject_worker"

	EventClaim       Event = "claim_milestone"
	EventAcceptClaim Event = "accept_claim"
	EventRejectClaim Event = "reject_claim"

	EventClose Event = "close"
)

// Edge is one row of a transition table.
type Edge[S comparable] struct {
	From    S
	Event   Event
	To      S
	Role    Role
	Notices []NoticeKind
}

type edgeKey[S comparable] struct {
	from  S
	event Event
}

// Table is a total transition function over a declared state set: every
// (state, event) pair not listed is rejected with InvalidTransitionError.
type Table[S comparable] struct {
	machine string
	states  map[S]struct{}
	edges   map[edgeKey[S]]Edge[S]
	byFrom  map[S][]Event
	roles   map[Event]Role
}

// NewTable validates and indexes edges. Every From/To must be in states, no
// (from, event) pair may repeat, and an event must require the same role on
// every edge it appears on.
func NewTable[S comparable](machine string, states []S, edges []Edge[S]) (*Table[S], error) {
	t := &Table[S]{
		machine: machine,
		states:  make(map[S]struct{}, len(states)),
		edges:   make(map[edgeKey[S]]Edge[S], len(edges)),
		byFrom:  make(map[S][]Event),
		roles:   make(map[Event]Role),
	}
	for _, s := range states {
		t.states[s] = struct{}{}
	}
	for i, e := range edges {
		if _, ok := t.states[e.From]; !ok {
			return nil, fmt.Errorf("%s: edge %d: undeclared from-state %v", machine, i, e.From)
		}
		if _, ok := t.states[e.To]; !ok {
			return nil, fmt.Errorf("%s: edge %d: undeclared to-state %v", machine, i, e.To)
		}
		if e.Event == "" {
			return nil, fmt.Errorf("%s: edge %d: empty event", machine, i)
		}
		k := edgeKey[S]{from: e.From, event: e.Event}
		if _, dup := t.edges[k]; dup {
			return nil, fmt.Errorf("%s: duplicate edge %v --%s-->", machine, e.From, e.Event)
		}
		if r, seen := t.roles[e.Event]; seen && r != e.Role {
			return nil, fmt.Errorf("%s: event %s requires both %s and %s", machine, e.Event, r, e.Role)
		}
		t.roles[e.Event] = e.Role
		t.edges[k] = e
		t.byFrom[e.From] = append(t.byFrom[e.From], e.Event)
	}
	return t, nil
}

// MustTable is NewTable for package-level tables; a malformed table is a
// programming error and panics at init.
func MustTable[S comparable](machine string, states []S, edges []Edge[S]) *Table[S] {
	t, err := NewTable(machine, states, edges)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table[S]) Machine() string { return t.machine }

// Lookup returns the edge for (from, event) or an InvalidTransitionError.
func (t *Table[S]) Lookup(from S, event Event) (Edge[S], error) {
	e, ok := t.edges[edgeKey[S]{from: from, event: event}]
	if !ok {
		return Edge[S]{}, &InvalidTransitionError{Machine: t.machine, From: stateName(from), Event: event}
	}
	return e, nil
}

// Allowed reports whether event may fire from state.
func (t *Table[S]) Allowed(from S, event Event) bool {
	_, ok := t.edges[edgeKey[S]{from: from, event: event}]
	return ok
}

// Events lists the events permitted from state, in declaration order.
func (t *Table[S]) Events(from S) []Event {
	src := t.byFrom[from]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// RoleOf returns the role that event requires, independent of state.
func (t *Table[S]) RoleOf(event Event) (Role, bool) {
	r, ok := t.roles[event]
	return r, ok
}

func stateName(s interface{}) string {
	if st, ok := s.(fmt.Stringer); ok {
		return st.String()
	}
	if str := fmt.Sprint(s); str != "" {
		return str
	}
	return "NONE"
}
