package repository

import (
	"context"
	"fmt"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RFWRepository struct {
	db *gorm.DB
}

func NewRFWRepository(db *gorm.DB) *RFWRepository {
	return &RFWRepository{db: db}
}

func (r *RFWRepository) preload(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Workers", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Workers.User").
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("milestone_index ASC") }).
		Preload("Milestones.Claims", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Tags")
}

// Get loads a bounty with its workers, milestones, claims and tags.
func (r *RFWRepository) Get(ctx context.Context, id uint) (*models.RFW, error) {
	var rfw models.RFW
	if err := r.preload(ctx).First(&rfw, id).Error; err != nil {
		return nil, translate(err, "rfw", id)
	}
	return &rfw, nil
}

// List returns bounties newest first. Drafts are skipped unless includeDrafts.
func (r *RFWRepository) List(ctx context.Context, includeDrafts bool) ([]models.RFW, error) {
	query := r.db.WithContext(ctx).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("milestone_index ASC") }).
		Preload("Tags")
	if !includeDrafts {
		query = query.Where("status <> ?", contract.RFWDraft)
	}
	var items []models.RFW
	if err := query.Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Create inserts a bounty with its milestones and tag links at version 1.
func (r *RFWRepository) Create(ctx context.Context, rfw *models.RFW) error {
	rfw.Version = 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(rfw).Error; err != nil {
			return fmt.Errorf("create rfw: %w", err)
		}
		if err := saveRFWChildren(tx, rfw); err != nil {
			return err
		}
		return replaceTags(tx, rfw)
	})
	if err == nil {
		rfw.ComputeTotals()
	}
	return err
}

// Save writes the bounty, its roster, milestones and claims if nobody else
// wrote it since it was loaded. Milestones missing from rfw are removed with
// their claims.
func (r *RFWRepository) Save(ctx context.Context, rfw *models.RFW) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RFW{}).
			Where("id = ? AND version = ?", rfw.ID, rfw.Version).
			Updates(map[string]interface{}{
				"version":            gorm.Expr("version + 1"),
				"title":              rfw.Title,
				"brief":              rfw.Brief,
				"content":            rfw.Content,
				"category":           rfw.Category,
				"status":             rfw.Status,
				"status_change_date": rfw.StatusChangeDate,
			})
		if res.Error != nil {
			return fmt.Errorf("update rfw: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &contract.ConflictError{Entity: "rfw", ID: rfw.ID}
		}
		if err := saveRFWChildren(tx, rfw); err != nil {
			return err
		}
		return replaceTags(tx, rfw)
	})
	if err != nil {
		return err
	}
	rfw.Version++
	rfw.ComputeTotals()
	return nil
}

func saveRFWChildren(tx *gorm.DB, rfw *models.RFW) error {
	for i := range rfw.Workers {
		rfw.Workers[i].RFWID = rfw.ID
		if err := tx.Omit(clause.Associations).Save(&rfw.Workers[i]).Error; err != nil {
			return fmt.Errorf("save worker: %w", err)
		}
	}

	keep := make([]uint, 0, len(rfw.Milestones))
	for _, m := range rfw.Milestones {
		if m.ID != 0 {
			keep = append(keep, m.ID)
		}
	}
	gone := tx.Model(&models.RFWMilestone{}).Select("id").Where("rfw_id = ?", rfw.ID)
	if len(keep) > 0 {
		gone = gone.Where("id NOT IN ?", keep)
	}
	if err := tx.Where("milestone_id IN (?)", gone).Delete(&models.RFWMilestoneClaim{}).Error; err != nil {
		return fmt.Errorf("prune claims: %w", err)
	}
	prune := tx.Where("rfw_id = ?", rfw.ID)
	if len(keep) > 0 {
		prune = prune.Where("id NOT IN ?", keep)
	}
	if err := prune.Delete(&models.RFWMilestone{}).Error; err != nil {
		return fmt.Errorf("prune milestones: %w", err)
	}

	for i := range rfw.Milestones {
		m := &rfw.Milestones[i]
		m.RFWID = rfw.ID
		if err := tx.Omit(clause.Associations).Save(m).Error; err != nil {
			return fmt.Errorf("save rfw milestone %d: %w", m.Index, err)
		}
		for j := range m.Claims {
			m.Claims[j].MilestoneID = m.ID
			if err := tx.Omit(clause.Associations).Save(&m.Claims[j]).Error; err != nil {
				return fmt.Errorf("save claim: %w", err)
			}
		}
	}
	return nil
}

func replaceTags(tx *gorm.DB, rfw *models.RFW) error {
	if err := tx.Where("rfw_id = ?", rfw.ID).Delete(&rfwTag{}).Error; err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, t := range rfw.Tags {
		if err := tx.Create(&rfwTag{RFWID: rfw.ID, TagID: t.ID}).Error; err != nil {
			return fmt.Errorf("link tag %d: %w", t.ID, err)
		}
	}
	return nil
}

// rfwTag is the join row of models.RFW.Tags.
type rfwTag struct {
	RFWID uint `gorm:"column:rfw_id;primaryKey"`
	TagID uint `gorm:"column:tag_id;primaryKey"`
}

func (rfwTag) TableName() string { return "rfw_tags" }

// Delete removes a bounty with everything hanging off it.
func (r *RFWRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.RFW{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return &contract.NotFoundError{Entity: "rfw", ID: id}
		}
		milestones := tx.Model(&models.RFWMilestone{}).Select("id").Where("rfw_id = ?", id)
		if err := tx.Where("milestone_id IN (?)", milestones).Delete(&models.RFWMilestoneClaim{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rfw_id = ?", id).Delete(&models.RFWMilestone{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rfw_id = ?", id).Delete(&models.RFWWorker{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rfw_id = ?", id).Delete(&rfwTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.RFW{}, id).Error
	})
}
