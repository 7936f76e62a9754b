package contract

// ProposalState is the key of the proposal machine. Stage only counts while
// the proposal is LIVE; use StateOf to build one.
type ProposalState struct {
	Status ProposalStatus
	Stage  ProposalStage
}

// StateOf normalizes (status, stage) into a table key.
func StateOf(status ProposalStatus, stage ProposalStage) ProposalState {
	if status != ProposalLive {
		return ProposalState{Status: status}
	}
	return ProposalState{Status: status, Stage: stage}
}

func (s ProposalState) String() string {
	if s.Stage == "" {
		return string(s.Status)
	}
	return string(s.Status) + "/" + string(s.Stage)
}

var (
	stDraft    = ProposalState{Status: ProposalDraft}
	stPending  = ProposalState{Status: ProposalPending}
	stApproved = ProposalState{Status: ProposalApproved}
	stRejected = ProposalState{Status: ProposalRejected}
	stDeleted  = ProposalState{Status: ProposalDeleted}
	stFunding  = ProposalState{Status: ProposalLive, Stage: StageFundingRequired}
	stWIP      = ProposalState{Status: ProposalLive, Stage: StageWIP}
	stDone     = ProposalState{Status: ProposalLive, Stage: StageCompleted}
	stFailed   = ProposalState{Status: ProposalLive, Stage: StageFailed}
	stCanceled = ProposalState{Status: ProposalLive, Stage: StageCanceled}
)

var proposalStates = []ProposalState{
	stDraft, stPending, stApproved, stRejected, stDeleted,
	stFunding, stWIP, stDone, stFailed, stCanceled,
}

func proposalEdges() []Edge[ProposalState] {
	edges := []Edge[ProposalState]{
		{From: stDraft, Event: EventSubmit, To: stPending, Role: RoleTeam, Notices: []NoticeKind{NoticeAdminApproval}},
		{From: stRejected, Event: EventResubmit, To: stPending, Role: RoleTeam, Notices: []NoticeKind{NoticeAdminApproval}},
		{From: stPending, Event: EventApprove, To: stApproved, Role: RoleAdmin, Notices: []NoticeKind{NoticeProposalApproved}},
		{From: stPending, Event: EventReject, To: stRejected, Role: RoleAdmin, Notices: []NoticeKind{NoticeProposalRejected}},
		{From: stPending, Event: EventAdminUpdate, To: stPending, Role: RoleAdmin},
		{From: stApproved, Event: EventPublish, To: stFunding, Role: RoleTeam},
		{From: stApproved, Event: EventPublishFunded, To: stWIP, Role: RoleTeam},
		{From: stFunding, Event: EventMarkFunded, To: stWIP, Role: RoleAdmin},
		{From: stFunding, Event: EventComplete, To: stDone, Role: RoleSystem},
		{From: stWIP, Event: EventComplete, To: stDone, Role: RoleSystem},
		{From: stDraft, Event: EventDelete, To: stDeleted, Role: RoleTeam},
		{From: stRejected, Event: EventDelete, To: stDeleted, Role: RoleTeam},
		{From: stDraft, Event: EventUpdateDraft, To: stDraft, Role: RoleTeam},
		{From: stRejected, Event: EventUpdateDraft, To: stRejected, Role: RoleTeam},
	}
	for _, from := range []ProposalState{stFunding, stWIP, stDone} {
		edges = append(edges, Edge[ProposalState]{
			From: from, Event: EventCancel, To: stCanceled, Role: RoleAdmin,
			Notices: []NoticeKind{NoticeProposalCanceled},
		})
	}
	for _, s := range proposalStates {
		if s == stDeleted {
			continue
		}
		edges = append(edges,
			Edge[ProposalState]{From: s, Event: EventUpdatePrivate, To: s, Role: RoleTeam},
			Edge[ProposalState]{From: s, Event: EventFollow, To: s, Role: RoleUser},
		)
	}
	return edges
}

// ProposalTable drives the proposal lifecycle.
var ProposalTable = MustTable("proposal", proposalStates, proposalEdges())

// MilestoneTable drives the payout pipeline of the active milestone.
var MilestoneTable = MustTable("milestone",
	[]MilestoneStage{MilestoneIdle, MilestoneRequested, MilestoneRejected, MilestoneAccepted, MilestonePaid},
	[]Edge[MilestoneStage]{
		{From: MilestoneIdle, Event: EventRequestPayout, To: MilestoneRequested, Role: RoleTeam, Notices: []NoticeKind{NoticeAdminPayout}},
		{From: MilestoneRejected, Event: EventRequestPayout, To: MilestoneRequested, Role: RoleTeam, Notices: []NoticeKind{NoticeAdminPayout}},
		{From: MilestoneRequested, Event: EventAcceptPayout, To: MilestoneAccepted, Role: RoleAdmin, Notices: []NoticeKind{NoticeMilestoneAccept}},
		{From: MilestoneRequested, Event: EventRejectPayout, To: MilestoneRejected, Role: RoleAdmin, Notices: []NoticeKind{NoticeMilestoneReject}},
		{From: MilestoneAccepted, Event: EventMarkPaid, To: MilestonePaid, Role: RoleAdmin, Notices: []NoticeKind{NoticeMilestonePaid, NoticeFollowedProposalMilestone}},
	},
)

// WorkerTable drives bounty worker approval. WorkerNone stands for "no row yet".
var WorkerTable = MustTable("rfw_worker",
	[]WorkerStatus{WorkerNone, WorkerRequested, WorkerAccepted, WorkerRejected},
	[]Edge[WorkerStatus]{
		{From: WorkerNone, Event: EventRequestWork, To: WorkerRequested, Role: RoleUser, Notices: []NoticeKind{NoticeAdminWorkerRequest}},
		{From: WorkerRejected, Event: EventRequestWork, To: WorkerRequested, Role: RoleUser, Notices: []NoticeKind{NoticeAdminWorkerRequest}},
		{From: WorkerRequested, Event: EventAcceptWorker, To: WorkerAccepted, Role: RoleAdmin, Notices: []NoticeKind{NoticeWorkerApproved}},
		{From: WorkerRequested, Event: EventRejectWorker, To: WorkerRejected, Role: RoleAdmin, Notices: []NoticeKind{NoticeWorkerRejected}},
	},
)

// ClaimTable drives bounty milestone claims. Claims are append-only rows, so
// ClaimNone is the state of a claim about to be created.
var ClaimTable = MustTable("rfw_claim",
	[]ClaimStage{ClaimNone, ClaimRequested, ClaimRejected, ClaimAccepted},
	[]Edge[ClaimStage]{
		{From: ClaimNone, Event: EventClaim, To: ClaimRequested, Role: RoleWorker, Notices: []NoticeKind{NoticeAdminWorkMilestoneClaim}},
		{From: ClaimRequested, Event: EventAcceptClaim, To: ClaimAccepted, Role: RoleAdmin, Notices: []NoticeKind{NoticeWorkMilestoneAccepted}},
		{From: ClaimRequested, Event: EventRejectClaim, To: ClaimRejected, Role: RoleAdmin, Notices: []NoticeKind{NoticeWorkMilestoneRejected}},
	},
)

// RFWTable drives bounty publication.
var RFWTable = MustTable("rfw",
	[]RFWStatus{RFWDraft, RFWLive, RFWClosed},
	[]Edge[RFWStatus]{
		{From: RFWDraft, Event: EventPublish, To: RFWLive, Role: RoleAdmin},
		{From: RFWLive, Event: EventClose, To: RFWClosed, Role: RoleAdmin},
	},
)

// IsFailed reports whether a published proposal ended without completing.
func IsFailed(status ProposalStatus, stage ProposalStage, published bool) bool {
	return status == ProposalLive && published && (stage == StageFailed || stage == StageCanceled)
}
