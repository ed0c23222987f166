package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/provisioner"
	"github.com/pvarki/takbackend/internal/queue/tasks"
	"github.com/pvarki/takbackend/internal/repository"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
)

// Instance service interface and DTOs
type InstanceService interface {
	// Lifecycle
	CreateInstance(ctx context.Context, ownerID string, input *CreateInstanceInput) (*models.Instance, error)
	GetInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) (*models.Instance, error)
	ListInstances(ctx context.Context, ownerID string) ([]models.Instance, error)
	DeleteInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) error

	// Called by the pipeline
	CompleteInstance(ctx context.Context, instanceID uuid.UUID, outputs map[string]any) error
}

type CreateInstanceInput struct {
	// ID is optional; uuid.Nil means generate one.
	ID               uuid.UUID
	Color            string
	Grouping         string
	ServerName       string
	TFInputs         map[string]any
	ReadyEmail       *string
	ReadyCallbackURL *string
	SequencePrefix   *string
	SequenceMax      *int
}

type InstanceServiceOptions struct {
	Links         links.Builder
	NotifyTimeout time.Duration
}

type instanceService struct {
	instanceRepo repository.InstanceRepository
	sequenceRepo repository.SequenceRepository
	gateway      provisioner.Provisioner
	queue        tasks.Enqueuer
	opts         InstanceServiceOptions
	now          func() time.Time
}

func NewInstanceService(instanceRepo repository.InstanceRepository, sequenceRepo repository.SequenceRepository, gateway provisioner.Provisioner, queue tasks.Enqueuer, opts InstanceServiceOptions) InstanceService {
	return &instanceService{
		instanceRepo: instanceRepo,
		sequenceRepo: sequenceRepo,
		gateway:      gateway,
		queue:        queue,
		opts:         opts,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ InstanceService = (*instanceService)(nil)

func (s *instanceService) CreateInstance(ctx context.Context, ownerID string, input *CreateInstanceInput) (*models.Instance, error) {
	if input == nil || input.ServerName == "" {
		return nil, appErr.New(appErr.CodeInvalid, "server_name is required")
	}
	if (input.SequencePrefix == nil) != (input.SequenceMax == nil) {
		return nil, appErr.New(appErr.CodeInvalid, "sequence_prefix and sequence_max go together")
	}
	logger.L().Info("create instance", zap.String("owner_id", ownerID), zap.String("server_name", input.ServerName))

	inputs := map[string]any{}
	for k, v := range input.TFInputs {
		inputs[k] = v
	}
	inputs["server_name"] = input.ServerName
	ib, err := json.Marshal(inputs)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "marshal tf inputs failed")
	}

	grouping := input.Grouping
	if grouping == "" {
		grouping = "_"
	}
	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	inst := &models.Instance{
		ID:               id,
		OwnerID:          ownerID,
		Color:            input.Color,
		Grouping:         grouping,
		ServerName:       input.ServerName,
		TFInputs:         datatypes.JSON(ib),
		ReadyEmail:       input.ReadyEmail,
		ReadyCallbackURL: input.ReadyCallbackURL,
	}
	if err := s.instanceRepo.Create(ctx, inst); err != nil {
		return nil, err
	}

	if err := s.gateway.Create(ctx, inst, s.opts.Links.Callback(inst.ID)); err != nil {
		logger.L().Error("could not trigger pipeline", zap.String("instance_id", inst.ID.String()), zap.Error(err))
		// Do not leave the row behind, nothing will ever complete it.
		cctx, cancel := detached(ctx)
		defer cancel()
		if perr := s.instanceRepo.Purge(cctx, inst.ID); perr != nil {
			logger.L().Error("purge after failed trigger failed", zap.String("instance_id", inst.ID.String()), zap.Error(perr))
		}
		return nil, appErr.Wrap(err, appErr.CodeUpstreamFailed, "could not trigger pipeline")
	}

	if input.SequencePrefix != nil && input.SequenceMax != nil {
		seq := &models.ClientSequence{InstanceID: inst.ID, Prefix: *input.SequencePrefix, MaxClients: *input.SequenceMax}
		if err := s.sequenceRepo.Create(ctx, seq); err != nil {
			// The pipeline is already running, so the instance stays and the
			// caller gets its id to clean up with.
			logger.L().Error("create initial sequence failed", zap.String("instance_id", inst.ID.String()), zap.Error(err))
			code := appErr.CodeOf(err)
			if code == appErr.CodeUnknown {
				code = appErr.CodeInternal
			}
			return nil, appErr.Wrap(err, code, "instance created but initial sequence failed").WithMeta("instance_id", inst.ID.String())
		}
	}

	logger.L().Info("instance created and pipeline triggered", zap.String("instance_id", inst.ID.String()))
	return inst, nil
}

func (s *instanceService) GetInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) (*models.Instance, error) {
	var inst models.Instance
	if err := s.instanceRepo.GetByID(ctx, instanceID, &inst); err != nil {
		return nil, err
	}
	if inst.OwnerID != ownerID {
		return nil, appErr.New(appErr.CodeForbidden, "required privilege not granted")
	}
	return &inst, nil
}

func (s *instanceService) ListInstances(ctx context.Context, ownerID string) ([]models.Instance, error) {
	return s.instanceRepo.ListByOwner(ctx, ownerID)
}

func (s *instanceService) DeleteInstance(ctx context.Context, instanceID uuid.UUID, ownerID string) error {
	inst, err := s.GetInstance(ctx, instanceID, ownerID)
	if err != nil {
		return err
	}
	logger.L().Info("delete instance requested", zap.String("instance_id", instanceID.String()), zap.String("owner_id", ownerID))

	if err := s.gateway.Delete(ctx, inst); err != nil {
		logger.L().Error("could not trigger pipeline delete", zap.String("instance_id", instanceID.String()), zap.Error(err))
		return appErr.Wrap(err, appErr.CodeUpstreamFailed, "could not trigger pipeline delete")
	}
	// The pipeline is tearing the server down, hide the row even if the
	// caller went away meanwhile.
	cctx, cancel := detached(ctx)
	defer cancel()
	return s.instanceRepo.Delete(cctx, instanceID)
}

func (s *instanceService) CompleteInstance(ctx context.Context, instanceID uuid.UUID, outputs map[string]any) error {
	if outputs == nil {
		outputs = map[string]any{}
	}
	ob, err := json.Marshal(outputs)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "marshal tf outputs failed")
	}
	if err := s.instanceRepo.MarkCompleted(ctx, instanceID, datatypes.JSON(ob), s.now()); err != nil {
		return err
	}
	logger.L().Info("instance completed", zap.String("instance_id", instanceID.String()))

	var inst models.Instance
	if err := s.instanceRepo.GetByID(ctx, instanceID, &inst); err != nil {
		logger.L().Error("reload completed instance failed, no notifications", zap.String("instance_id", instanceID.String()), zap.Error(err))
		return nil
	}
	if inst.ReadyEmail != nil && *inst.ReadyEmail != "" {
		s.enqueue(ctx, tasks.TypeNotifyEmail, inst.ID)
	}
	if inst.ReadyCallbackURL != nil && *inst.ReadyCallbackURL != "" {
		s.enqueue(ctx, tasks.TypeNotifyWebhook, inst.ID)
	}
	return nil
}

// enqueue is best effort: the completion is already stored.
func (s *instanceService) enqueue(ctx context.Context, typename string, instanceID uuid.UUID) {
	if s.queue == nil {
		logger.L().Warn("asynq client not configured, skipping enqueue", zap.String("type", typename), zap.String("instance_id", instanceID.String()))
		return
	}
	task, err := tasks.NewNotifyTask(typename, instanceID, s.opts.NotifyTimeout)
	if err != nil {
		logger.L().Error("build notify task failed", zap.String("type", typename), zap.Error(err))
		return
	}
	if _, err := s.queue.EnqueueContext(ctx, task); err != nil {
		logger.L().Error("enqueue notify task failed", zap.String("type", typename), zap.String("instance_id", instanceID.String()), zap.Error(err))
		return
	}
	logger.L().Info("notify task enqueued", zap.String("type", typename), zap.String("instance_id", instanceID.String()))
}

// cleanupTimeout bounds store writes that must outlive the request.
const cleanupTimeout = 10 * time.Second

// detached keeps ctx values but not its cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}
