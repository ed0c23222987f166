package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pvarki/takbackend/internal/models"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"gorm.io/gorm"
)

// ClientRepository is read-mostly: clients are inserted by the sequence
// allocator and never updated afterwards.
type ClientRepository interface {
	GetByID(ctx context.Context, id any, dest *models.Client) error
	GetByName(ctx context.Context, instanceID uuid.UUID, name string, dest *models.Client) error
	ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]models.Client, error)
}

type clientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) GetByID(ctx context.Context, id any, dest *models.Client) error {
	if err := r.db.WithContext(ctx).First(dest, "id = ?", id).Error; err != nil {
		return translateError(err, "get client failed")
	}
	return nil
}

func (r *clientRepository) GetByName(ctx context.Context, instanceID uuid.UUID, name string, dest *models.Client) error {
	if err := r.db.WithContext(ctx).Where("instance_id = ? AND name = ?", instanceID, name).First(dest).Error; err != nil {
		return translateError(err, "get client by name failed")
	}
	return nil
}

func (r *clientRepository) ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]models.Client, error) {
	var out []models.Client
	if err := r.db.WithContext(ctx).Where("sequence_id = ?", sequenceID).Order("name ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list clients failed")
	}
	return out, nil
}
