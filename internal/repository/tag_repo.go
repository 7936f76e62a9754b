package repository

import (
	"context"
	"fmt"

	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/contract"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TagRepository struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) List(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.WithContext(ctx).Order("text ASC").Find(&tags).Error
	return tags, err
}

// Find returns the tags with the given ids. Unknown ids fail with NotFoundError.
func (r *TagRepository) Find(ctx context.Context, ids []uint) ([]models.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	found := make(map[uint]bool, len(tags))
	for _, t := range tags {
		found[t.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, &contract.NotFoundError{Entity: "tag", ID: id}
		}
	}
	return tags, nil
}

// Upsert creates the tag or, when a tag with the same text exists, updates
// its description and color.
func (r *TagRepository) Upsert(ctx context.Context, tag *models.Tag) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "text"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "color"}),
	}).Create(tag).Error
	if err != nil {
		return fmt.Errorf("upsert tag: %w", err)
	}
	// the returned id is unreliable after an ON CONFLICT update on some drivers
	text := tag.Text
	*tag = models.Tag{}
	return r.db.WithContext(ctx).Where("text = ?", text).First(tag).Error
}

// Delete removes a tag and detaches it from every bounty.
func (r *TagRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tag_id = ?", id).Delete(&rfwTag{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Tag{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &contract.NotFoundError{Entity: "tag", ID: id}
		}
		return nil
	})
}
