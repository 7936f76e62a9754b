package models

import (
	"time"

	"github.com/grantflow/backend/pkg/contract"
	"github.com/shopspring/decimal"
)

// Proposal is the aggregate root of a funding request. Version guards every
// write; see repository.ProposalRepository.Save.
type Proposal struct {
	ID             uint                    `gorm:"primaryKey" json:"id"`
	Version        uint                    `gorm:"not null;default:1" json:"version"`
	Status         contract.ProposalStatus `gorm:"size:20;index;not null" json:"status"`
	Stage          contract.ProposalStage  `gorm:"size:20;index;not null" json:"stage"`
	Title          string                  `gorm:"size:255" json:"title"`
	Brief          string                  `gorm:"size:255" json:"brief"`
	Content        string                  `gorm:"type:text" json:"content"`
	Category       contract.Category       `gorm:"size:30" json:"category"`
	Target         decimal.Decimal         `gorm:"type:decimal(38,8)" json:"target"`
	RejectReason   string                  `gorm:"size:255" json:"rejectReason,omitempty"`
	Private        bool                    `gorm:"default:false" json:"private"`
	RFPID          *uint                   `gorm:"column:rfp_id;index" json:"rfpId,omitempty"`
	CreatedBy      uint                    `gorm:"index" json:"createdBy"`
	DateApproved   *time.Time              `json:"dateApproved"`
	DatePublished  *time.Time              `json:"datePublished"`
	Milestones     []Milestone             `gorm:"foreignKey:ProposalID" json:"milestones"`
	Team           []ProposalMember        `gorm:"foreignKey:ProposalID" json:"team"`
	FollowersCount int64                   `gorm:"-" json:"followersCount"`
	IsFollowed     bool                    `gorm:"-" json:"authedFollows"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

func (Proposal) TableName() string { return "proposals" }

// State is the key of this proposal in contract.ProposalTable.
func (p *Proposal) State() contract.ProposalState {
	return contract.StateOf(p.Status, p.Stage)
}

// IsTeamMember reports whether userID is on the proposal team.
func (p *Proposal) IsTeamMember(userID uint) bool {
	for _, m := range p.Team {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// TeamUserIDs lists the user ids of the team.
func (p *Proposal) TeamUserIDs() []uint {
	ids := make([]uint, 0, len(p.Team))
	for _, m := range p.Team {
		ids = append(ids, m.UserID)
	}
	return ids
}

// IsFailed reports whether the proposal was published and then failed or was canceled.
func (p *Proposal) IsFailed() bool {
	return contract.IsFailed(p.Status, p.Stage, p.DatePublished != nil)
}

// Milestone is one payout step of a proposal.
type Milestone struct {
	ID              uint                    `gorm:"primaryKey" json:"id"`
	ProposalID      uint                    `gorm:"index;not null" json:"proposalId"`
	Index           int                     `gorm:"column:milestone_index;not null" json:"index"`
	Title           string                  `gorm:"size:255" json:"title"`
	Content         string                  `gorm:"type:text" json:"content"`
	PayoutAmount    decimal.Decimal         `gorm:"type:decimal(38,8)" json:"payoutAmount"`
	ImmediatePayout bool                    `gorm:"default:false" json:"immediatePayout"`
	DateEstimated   *time.Time              `json:"dateEstimated"`
	Stage           contract.MilestoneStage `gorm:"size:20;not null" json:"stage"`
	DateRequested   *time.Time              `json:"dateRequested"`
	RequestedUserID *uint                   `json:"requestedUserId"`
	DateRejected    *time.Time              `json:"dateRejected"`
	RejectReason    string                  `gorm:"size:255" json:"rejectReason,omitempty"`
	DateAccepted    *time.Time              `json:"dateAccepted"`
	DatePaid        *time.Time              `json:"datePaid"`
	PaidTxID        string                  `gorm:"size:255" json:"paidTxId,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func (Milestone) TableName() string { return "milestones" }

// ProposalMember is a user's membership in a proposal team.
type ProposalMember struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProposalID uint      `gorm:"uniqueIndex:idx_proposal_user;not null" json:"proposalId"`
	UserID     uint      `gorm:"uniqueIndex:idx_proposal_user;not null" json:"userId"`
	User       *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (ProposalMember) TableName() string { return "proposal_members" }

// ProposalFollower records that a user follows a proposal. Rows live outside
// the versioned aggregate and are inserted with ON CONFLICT DO NOTHING.
type ProposalFollower struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProposalID uint      `gorm:"uniqueIndex:idx_follower;not null" json:"proposalId"`
	UserID     uint      `gorm:"uniqueIndex:idx_follower;not null" json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (ProposalFollower) TableName() string { return "proposal_followers" }

// HistoryEvent is a row of the public activity feed.
type HistoryEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255" json:"title"`
	Content     string    `gorm:"type:text" json:"content"`
	UserID      *uint     `gorm:"index" json:"userId"`
	ProposalID  *uint     `gorm:"index" json:"proposalId"`
	MilestoneID *uint     `json:"milestoneId"`
	Date        time.Time `gorm:"index" json:"date"`
}

func (HistoryEvent) TableName() string { return "history_events" }
