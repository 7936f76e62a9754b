// Package contract holds the enums, transition tables and error types shared by
// every part of the workflow engine. Nothing else in the module redeclares them.
package contract

type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "DRAFT"
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
	ProposalLive     ProposalStatus = "LIVE"
	ProposalDeleted  ProposalStatus = "DELETED"
)

func (s ProposalStatus) Valid() bool {
	switch s {
	case ProposalDraft, ProposalPending, ProposalApproved, ProposalRejected, ProposalLive, ProposalDeleted:
		return true
	}
	return false
}

type ProposalStage string

const (
	StagePreview         ProposalStage = "PREVIEW"
	StageFundingRequired ProposalStage = "FUNDING_REQUIRED"
	StageWIP             ProposalStage = "WIP"
	StageCompleted       ProposalStage = "COMPLETED"
	StageFailed          ProposalStage = "FAILED"
	StageCanceled        ProposalStage = "CANCELED"
)

func (s ProposalStage) Valid() bool {
	switch s {
	case StagePreview, StageFundingRequired, StageWIP, StageCompleted, StageFailed, StageCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further milestone work can happen in this stage.
func (s ProposalStage) Terminal() bool {
	return s == StageFailed || s == StageCanceled || s == StageCompleted
}

type MilestoneStage string

const (
	MilestoneIdle      MilestoneStage = "IDLE"
	MilestoneRequested MilestoneStage = "REQUESTED"
	MilestoneRejected  MilestoneStage = "REJECTED"
	MilestoneAccepted  MilestoneStage = "ACCEPTED"
	MilestonePaid      MilestoneStage = "PAID"
)

// Active reports whether a milestone in this stage is the one currently
// moving through the payout pipeline.
func (s MilestoneStage) Active() bool {
	return s == MilestoneRequested || s == MilestoneRejected || s == MilestoneAccepted
}

type RFWStatus string

const (
	RFWDraft  RFWStatus = "DRAFT"
	RFWLive   RFWStatus = "LIVE"
	RFWClosed RFWStatus = "CLOSED"
)

func (s RFWStatus) Valid() bool {
	return s == RFWDraft || s == RFWLive || s == RFWClosed
}

type WorkerStatus string

const (
	// WorkerNone is the state of a user who has never asked to work on a bounty.
	WorkerNone      WorkerStatus = ""
	WorkerRequested WorkerStatus = "REQUESTED"
	WorkerAccepted  WorkerStatus = "ACCEPTED"
	WorkerRejected  WorkerStatus = "REJECTED"
)

type ClaimStage string

const (
	ClaimNone      ClaimStage = ""
	ClaimRequested ClaimStage = "REQUESTED"
	ClaimRejected  ClaimStage = "REJECTED"
	ClaimAccepted  ClaimStage = "ACCEPTED"
)

type Category string

const (
	CategoryDevTool       Category = "DEV_TOOL"
	CategoryCoreDev       Category = "CORE_DEV"
	CategoryAppDevArvo    Category = "APP_DEV_ARVO"
	CategoryAppDevAzimuth Category = "APP_DEV_AZIMUTH"
	CategoryAppDevOther   Category = "APP_DEV_OTHER"
	CategoryCommunity     Category = "COMMUNITY"
	CategoryDocumentation Category = "DOCUMENTATION"
	CategorySecurity      Category = "SECURITY"
	CategoryDesign        Category = "DESIGN"
)

var categories = []Category{
	CategoryDevTool, CategoryCoreDev, CategoryAppDevArvo, CategoryAppDevAzimuth,
	CategoryAppDevOther, CategoryCommunity, CategoryDocumentation, CategorySecurity, CategoryDesign,
}

// Categories returns every accepted category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	for _, v := range categories {
		if v == c {
			return true
		}
	}
	return false
}

// Role is who may fire a transition. Admin and User double as account roles.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleTeam   Role = "team"
	RoleWorker Role = "worker"
	RoleSystem Role = "system"
)

// NoticeKind names a notification emitted by a transition.
type NoticeKind string

const (
	NoticeProposalApproved          NoticeKind = "proposal_approved"
	NoticeProposalRejected          NoticeKind = "proposal_rejected"
	NoticeProposalCanceled          NoticeKind = "proposal_canceled"
	NoticeAdminApproval             NoticeKind = "admin_approval"
	NoticeMilestoneAccept           NoticeKind = "milestone_accept"
	NoticeMilestoneReject           NoticeKind = "milestone_reject"
	NoticeMilestonePaid             NoticeKind = "milestone_paid"
	NoticeFollowedProposalMilestone NoticeKind = "followed_proposal_milestone"
	NoticeAdminPayout               NoticeKind = "admin_payout"
	NoticeAdminWorkerRequest        NoticeKind = "admin_worker_request"
	NoticeWorkerApproved            NoticeKind = "worker_approved"
	NoticeWorkerRejected            NoticeKind = "worker_rejected"
	NoticeAdminWorkMilestoneClaim   NoticeKind = "admin_work_milestone_claim"
	NoticeWorkMilestoneAccepted     NoticeKind = "work_milestone_accepted"
	NoticeWorkMilestoneRejected     NoticeKind = "work_milestone_rejected"
)

// Audience reports who receives a notice of this kind.
func (k NoticeKind) Audience() string {
	switch k {
	case NoticeAdminApproval, NoticeAdminPayout, NoticeAdminWorkerRequest, NoticeAdminWorkMilestoneClaim:
		return "admins"
	case NoticeFollowedProposalMilestone:
		return "followers"
	case NoticeWorkerApproved, NoticeWorkerRejected, NoticeWorkMilestoneAccepted, NoticeWorkMilestoneRejected:
		return "worker"
	}
	return "team"
}
