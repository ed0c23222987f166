package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pvarki/takbackend/internal/models"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAlreadyCompleted is returned when a second completion callback arrives.
var ErrAlreadyCompleted = appErr.New(appErr.CodeAlreadyCompleted, "may only be called once per instance")

type InstanceRepository interface {
	BaseRepository[models.Instance]
	ListByOwner(ctx context.Context, ownerID string) ([]models.Instance, error)
	// MarkCompleted stores outputs and the completion time in one statement,
	// only if the instance has not been completed before.
	MarkCompleted(ctx context.Context, id uuid.UUID, outputs datatypes.JSON, at time.Time) error
	// Purge removes the row entirely, bypassing soft delete.
	Purge(ctx context.Context, id uuid.UUID) error
}

type instanceRepository struct {
	BaseRepository[models.Instance]
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{BaseRepository: NewBaseRepository[models.Instance](db), db: db}
}

func (r *instanceRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Instance, error) {
	var out []models.Instance
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list instances by owner failed")
	}
	return out, nil
}

func (r *instanceRepository) MarkCompleted(ctx context.Context, id uuid.UUID, outputs datatypes.JSON, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Instance{}).
		Where("id = ? AND tf_completed IS NULL", id).
		Updates(map[string]any{"tf_completed": at, "tf_outputs": outputs})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "mark instance completed failed")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	// Nothing matched: either the id is unknown or the callback already ran.
	var existing models.Instance
	if err := r.GetByID(ctx, id, &existing); err != nil {
		return err
	}
	return ErrAlreadyCompleted
}

func (r *instanceRepository) Purge(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Unscoped().Delete(&models.Instance{}, "id = ?", id)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "purge instance failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "instance not found")
	}
	return nil
}
