package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/pvarki/takbackend/internal/models"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMaxClientsExceeded is returned once a sequence has handed out all of its names.
var ErrMaxClientsExceeded = appErr.New(appErr.CodeMaxClientsExceeded, "max_clients exceeded")

type SequenceRepository interface {
	BaseRepository[models.ClientSequence]
	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.ClientSequence, error)
	// NextClient allocates the next name from the sequence and records it as a
	// Client, all under an exclusive lock on the sequence row.
	NextClient(ctx context.Context, sequenceID uuid.UUID) (*models.Client, error)
}

type sequenceRepository struct {
	BaseRepository[models.ClientSequence]
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{BaseRepository: NewBaseRepository[models.ClientSequence](db), db: db}
}

func (r *sequenceRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.ClientSequence, error) {
	var out []models.ClientSequence
	if err := r.db.WithContext(ctx).Where("instance_id = ?", instanceID).Order("prefix ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list sequences failed")
	}
	return out, nil
}

func (r *sequenceRepository) NextClient(ctx context.Context, sequenceID uuid.UUID) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq models.ClientSequence
		// SELECT ... FOR UPDATE: concurrent allocators on the same row queue here.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&seq, "id = ?", sequenceID).Error; err != nil {
			return translateError(err, "lock sequence failed")
		}
		if seq.Exhausted() {
			return ErrMaxClientsExceeded
		}

		client = models.Client{
			InstanceID: seq.InstanceID,
			SequenceID: seq.ID,
			Name:       FormatClientName(seq.Prefix, seq.NextClientNo, seq.MaxClients),
		}
		if err := tx.Create(&client).Error; err != nil {
			return translateError(err, "create client failed")
		}

		res := tx.Model(&models.ClientSequence{}).Where("id = ?", seq.ID).
			Update("next_client_no", gorm.Expr("next_client_no + 1"))
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "advance sequence failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.L().Info("client allocated",
		zap.String("sequence_id", sequenceID.String()),
		zap.String("client_id", client.ID.String()),
		zap.String("name", client.Name),
	)
	return &client, nil
}

// FormatClientName zero-pads n to the digit count of maxClients and appends
// it to prefix: ("FOX_", 3, 500) -> "FOX_003", ("A", 1, 2) -> "A1".
func FormatClientName(prefix string, n, maxClients int) string {
	width := len(strconv.Itoa(maxClients))
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}
