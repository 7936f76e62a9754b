package models

import (
	"time"

	"github.com/grantflow/backend/pkg/contract"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RFW is a bounty ("request for work"): independently claimable milestones
// worked by approved workers.
type RFW struct {
	ID               uint               `gorm:"primaryKey" json:"id"`
	Version          uint               `gorm:"not null;default:1" json:"version"`
	Title            string             `gorm:"size:255" json:"title"`
	Brief            string             `gorm:"size:255" json:"brief"`
	Content          string             `gorm:"type:text" json:"content"`
	Category         contract.Category  `gorm:"size:30" json:"category"`
	Status           contract.RFWStatus `gorm:"size:20;index;not null" json:"status"`
	StatusChangeDate *time.Time         `json:"statusChangeDate"`
	CreatedBy        uint               `json:"createdBy"`
	Workers          []RFWWorker        `gorm:"foreignKey:RFWID" json:"workers"`
	Milestones       []RFWMilestone     `gorm:"foreignKey:RFWID" json:"milestones"`
	Tags             []Tag              `gorm:"many2many:rfw_tags" json:"tags"`
	Bounty           decimal.Decimal    `gorm:"-" json:"bounty"`
	EffortFrom       int                `gorm:"-" json:"effortFrom"`
	EffortTo         int                `gorm:"-" json:"effortTo"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

func (RFW) TableName() string { return "rfws" }

// ComputeTotals fills Bounty, EffortFrom and EffortTo from the milestones.
func (r *RFW) ComputeTotals() {
	r.Bounty = decimal.Zero
	r.EffortFrom, r.EffortTo = 0, 0
	for _, m := range r.Milestones {
		r.Bounty = r.Bounty.Add(m.Bounty)
		r.EffortFrom += m.EffortFrom
		r.EffortTo += m.EffortTo
	}
}

func (r *RFW) AfterFind(tx *gorm.DB) error {
	r.ComputeTotals()
	return nil
}

// WorkerByUser returns the worker row of userID, or nil.
func (r *RFW) WorkerByUser(userID uint) *RFWWorker {
	for i := range r.Workers {
		if r.Workers[i].UserID == userID {
			return &r.Workers[i]
		}
	}
	return nil
}

// Worker returns the worker row with id, or nil.
func (r *RFW) Worker(id uint) *RFWWorker {
	for i := range r.Workers {
		if r.Workers[i].ID == id {
			return &r.Workers[i]
		}
	}
	return nil
}

// Milestone returns the milestone with id, or nil.
func (r *RFW) Milestone(id uint) *RFWMilestone {
	for i := range r.Milestones {
		if r.Milestones[i].ID == id {
			return &r.Milestones[i]
		}
	}
	return nil
}

// RFWWorker is a user's standing on a bounty. One row per (rfw, user).
type RFWWorker struct {
	ID               uint                  `gorm:"primaryKey" json:"id"`
	RFWID            uint                  `gorm:"column:rfw_id;uniqueIndex:idx_rfw_user;not null" json:"rfwId"`
	UserID           uint                  `gorm:"uniqueIndex:idx_rfw_user;not null" json:"userId"`
	User             *User                 `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status           contract.WorkerStatus `gorm:"size:20;not null" json:"status"`
	StatusMessage    string                `gorm:"type:text" json:"statusMessage"`
	StatusChangeDate *time.Time            `json:"statusChangeDate"`
	CreatedAt        time.Time             `json:"createdAt"`
}

func (RFWWorker) TableName() string { return "rfw_workers" }

// RFWMilestone is an independently claimable piece of a bounty.
type RFWMilestone struct {
	ID         uint                `gorm:"primaryKey" json:"id"`
	RFWID      uint                `gorm:"column:rfw_id;index;not null" json:"rfwId"`
	Index      int                 `gorm:"column:milestone_index;not null" json:"index"`
	Title      string              `gorm:"size:255" json:"title"`
	Content    string              `gorm:"type:text" json:"content"`
	EffortFrom int                 `json:"effortFrom"`
	EffortTo   int                 `json:"effortTo"`
	Bounty     decimal.Decimal     `gorm:"type:decimal(38,8)" json:"bounty"`
	Closed     bool                `gorm:"default:false" json:"closed"`
	Claims     []RFWMilestoneClaim `gorm:"foreignKey:MilestoneID" json:"claims"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

func (RFWMilestone) TableName() string { return "rfw_milestones" }

// Claim returns the claim with id, or nil.
func (m *RFWMilestone) Claim(id uint) *RFWMilestoneClaim {
	for i := range m.Claims {
		if m.Claims[i].ID == id {
			return &m.Claims[i]
		}
	}
	return nil
}

// RFWMilestoneClaim is a worker's request to be paid for a bounty milestone.
// Rows are never reused: a new claim after rejection is a new row.
type RFWMilestoneClaim struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	MilestoneID     uint                `gorm:"index;not null" json:"milestoneId"`
	WorkerID        uint                `gorm:"index;not null" json:"workerId"`
	Stage           contract.ClaimStage `gorm:"size:20;not null" json:"stage"`
	StageMessage    string              `gorm:"type:text" json:"stageMessage"`
	StageURL        string              `gorm:"column:stage_url;size:500" json:"stageUrl"`
	StageChangeDate *time.Time          `json:"stageChangeDate"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func (RFWMilestoneClaim) TableName() string { return "rfw_milestone_claims" }

// Tag labels bounties.
type Tag struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Text        string    `gorm:"uniqueIndex;size:100;not null" json:"text"`
	Description string    `gorm:"size:255" json:"description"`
	Color       string    `gorm:"size:20" json:"color"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Tag) TableName() string { return "tags" }
