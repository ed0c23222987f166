package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/repository"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
)

// Instructions are only served once the instance's certificate API is up.
type InstructionsService interface {
	InstanceInstructions(ctx context.Context, instanceID uuid.UUID) (*InstanceInstructions, error)
	ClientBundle(ctx context.Context, clientID uuid.UUID) (*ClientBundle, error)
}

type InstanceInstructions struct {
	Instance  *models.Instance
	Sequences []models.ClientSequence
}

type ClientBundle struct {
	Client   *models.Client
	Instance *models.Instance
	Zip      []byte
}

type ReadinessWaiter interface {
	AwaitReady(ctx context.Context, target certsapi.Prober) error
}

type InstructionsServiceOptions struct {
	CertsScheme string
	CertsHTTP   *http.Client
	// ReadinessWait bounds how long one request waits for the certificate API.
	ReadinessWait time.Duration
}

type instructionsService struct {
	instanceRepo repository.InstanceRepository
	sequenceRepo repository.SequenceRepository
	clientRepo   repository.ClientRepository
	poller       ReadinessWaiter
	opts         InstructionsServiceOptions
}

func NewInstructionsService(instanceRepo repository.InstanceRepository, sequenceRepo repository.SequenceRepository, clientRepo repository.ClientRepository, poller ReadinessWaiter, opts InstructionsServiceOptions) InstructionsService {
	return &instructionsService{
		instanceRepo: instanceRepo,
		sequenceRepo: sequenceRepo,
		clientRepo:   clientRepo,
		poller:       poller,
		opts:         opts,
	}
}

var _ InstructionsService = (*instructionsService)(nil)

func (s *instructionsService) InstanceInstructions(ctx context.Context, instanceID uuid.UUID) (*InstanceInstructions, error) {
	var inst models.Instance
	if err := s.instanceRepo.GetByID(ctx, instanceID, &inst); err != nil {
		return nil, err
	}
	if _, err := s.readyCerts(ctx, &inst); err != nil {
		return nil, err
	}
	seqs, err := s.sequenceRepo.ListByInstance(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	return &InstanceInstructions{Instance: &inst, Sequences: seqs}, nil
}

func (s *instructionsService) ClientBundle(ctx context.Context, clientID uuid.UUID) (*ClientBundle, error) {
	var client models.Client
	if err := s.clientRepo.GetByID(ctx, clientID, &client); err != nil {
		return nil, err
	}
	var inst models.Instance
	if err := s.instanceRepo.GetByID(ctx, client.InstanceID, &inst); err != nil {
		return nil, err
	}
	certs, err := s.readyCerts(ctx, &inst)
	if err != nil {
		return nil, err
	}

	zip, err := certs.GetOrCreateBundle(ctx, client.Name)
	if err != nil {
		logger.L().Error("client bundle fetch failed",
			zap.String("client_id", client.ID.String()),
			zap.String("name", client.Name),
			zap.Error(err),
		)
		return nil, appErr.Wrap(err, appErr.CodeUpstreamFailed, "could not get client zip")
	}
	return &ClientBundle{Client: &client, Instance: &inst, Zip: zip}, nil
}

// readyCerts checks that the pipeline has reported back and that the
// certificate API answers within ReadinessWait.
func (s *instructionsService) readyCerts(ctx context.Context, inst *models.Instance) (*certsapi.Client, error) {
	if !inst.HasOutputs() {
		if inst.Completed() {
			return nil, appErr.New(appErr.CodeConflict, "terraform information not available but pipeline completed")
		}
		return nil, appErr.New(appErr.CodeUnavailable, "terraform information not received yet")
	}
	certs, err := certsapi.FromOutputs(inst.TFOutputs, s.opts.CertsScheme, s.opts.CertsHTTP)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeConflict, "terraform outputs lack certificate api details")
	}

	wctx := ctx
	if s.opts.ReadinessWait > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, s.opts.ReadinessWait)
		defer cancel()
	}
	if err := s.poller.AwaitReady(wctx, certs); err != nil {
		if errors.Is(err, certsapi.ErrUnauthorized) {
			return nil, appErr.Wrap(err, appErr.CodeUpstreamFailed, "certificate api refused credentials")
		}
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "TAK server is not yet fully up, try again in a few minutes")
	}
	return certs, nil
}
