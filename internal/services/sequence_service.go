package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/repository"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
)

type SequenceService interface {
	CreateSequence(ctx context.Context, ownerID string, input *CreateSequenceInput) (*models.ClientSequence, error)
	ListSequences(ctx context.Context, instanceID uuid.UUID, ownerID string) ([]models.ClientSequence, error)
	DeleteSequence(ctx context.Context, sequenceID uuid.UUID, ownerID string) error

	// NextClient is public: anyone holding the sequence URL may allocate.
	NextClient(ctx context.Context, sequenceID uuid.UUID) (*models.Client, error)
}

type CreateSequenceInput struct {
	InstanceID uuid.UUID
	Prefix     string
	MaxClients int
}

type sequenceService struct {
	instanceRepo repository.InstanceRepository
	sequenceRepo repository.SequenceRepository
}

func NewSequenceService(instanceRepo repository.InstanceRepository, sequenceRepo repository.SequenceRepository) SequenceService {
	return &sequenceService{instanceRepo: instanceRepo, sequenceRepo: sequenceRepo}
}

var _ SequenceService = (*sequenceService)(nil)

func (s *sequenceService) CreateSequence(ctx context.Context, ownerID string, input *CreateSequenceInput) (*models.ClientSequence, error) {
	if input == nil || input.Prefix == "" || input.MaxClients < 1 {
		return nil, appErr.New(appErr.CodeInvalid, "prefix and a positive max_clients are required")
	}
	if err := s.ownInstance(ctx, input.InstanceID, ownerID); err != nil {
		return nil, err
	}
	seq := &models.ClientSequence{InstanceID: input.InstanceID, Prefix: input.Prefix, MaxClients: input.MaxClients}
	if err := s.sequenceRepo.Create(ctx, seq); err != nil {
		return nil, err
	}
	logger.L().Info("sequence created",
		zap.String("sequence_id", seq.ID.String()),
		zap.String("instance_id", seq.InstanceID.String()),
		zap.String("prefix", seq.Prefix),
		zap.Int("max_clients", seq.MaxClients),
	)
	return seq, nil
}

func (s *sequenceService) ListSequences(ctx context.Context, instanceID uuid.UUID, ownerID string) ([]models.ClientSequence, error) {
	if err := s.ownInstance(ctx, instanceID, ownerID); err != nil {
		return nil, err
	}
	return s.sequenceRepo.ListByInstance(ctx, instanceID)
}

func (s *sequenceService) DeleteSequence(ctx context.Context, sequenceID uuid.UUID, ownerID string) error {
	var seq models.ClientSequence
	if err := s.sequenceRepo.GetByID(ctx, sequenceID, &seq); err != nil {
		return err
	}
	if err := s.ownInstance(ctx, seq.InstanceID, ownerID); err != nil {
		return err
	}
	logger.L().Info("sequence deleted", zap.String("sequence_id", sequenceID.String()))
	return s.sequenceRepo.Delete(ctx, sequenceID)
}

func (s *sequenceService) NextClient(ctx context.Context, sequenceID uuid.UUID) (*models.Client, error) {
	return s.sequenceRepo.NextClient(ctx, sequenceID)
}

func (s *sequenceService) ownInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) error {
	var inst models.Instance
	if err := s.instanceRepo.GetByID(ctx, instanceID, &inst); err != nil {
		return err
	}
	if inst.OwnerID != ownerID {
		return appErr.New(appErr.CodeForbidden, "required privilege not granted")
	}
	return nil
}
