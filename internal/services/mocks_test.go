package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/pkg/logger"
)

func TestMain(m *testing.M) {
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type mockInstanceRepository struct {
	mock.Mock
}

func (m *mockInstanceRepository) Create(ctx context.Context, obj *models.Instance) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockInstanceRepository) GetByID(ctx context.Context, id any, dest *models.Instance) error {
	args := m.Called(ctx, id, dest)
	if args.Error(0) == nil && args.Get(1) != nil {
		src := args.Get(1).(*models.Instance)
		*dest = *src
	}
	return args.Error(0)
}

func (m *mockInstanceRepository) Update(ctx context.Context, obj *models.Instance) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockInstanceRepository) Delete(ctx context.Context, id any) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockInstanceRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Instance, error) {
	args := m.Called(ctx, ownerID)
	if v := args.Get(0); v != nil {
		return v.([]models.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInstanceRepository) MarkCompleted(ctx context.Context, id uuid.UUID, outputs datatypes.JSON, at time.Time) error {
	args := m.Called(ctx, id, outputs, at)
	return args.Error(0)
}

func (m *mockInstanceRepository) Purge(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockSequenceRepository struct {
	mock.Mock
}

func (m *mockSequenceRepository) Create(ctx context.Context, obj *models.ClientSequence) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockSequenceRepository) GetByID(ctx context.Context, id any, dest *models.ClientSequence) error {
	args := m.Called(ctx, id, dest)
	if args.Error(0) == nil && args.Get(1) != nil {
		src := args.Get(1).(*models.ClientSequence)
		*dest = *src
	}
	return args.Error(0)
}

func (m *mockSequenceRepository) Update(ctx context.Context, obj *models.ClientSequence) error {
	args := m.Called(ctx, obj)
	return args.Error(0)
}

func (m *mockSequenceRepository) Delete(ctx context.Context, id any) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSequenceRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]models.ClientSequence, error) {
	args := m.Called(ctx, instanceID)
	if v := args.Get(0); v != nil {
		return v.([]models.ClientSequence), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSequenceRepository) NextClient(ctx context.Context, sequenceID uuid.UUID) (*models.Client, error) {
	args := m.Called(ctx, sequenceID)
	if v := args.Get(0); v != nil {
		return v.(*models.Client), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockClientRepository struct {
	mock.Mock
}

func (m *mockClientRepository) GetByID(ctx context.Context, id any, dest *models.Client) error {
	args := m.Called(ctx, id, dest)
	if args.Error(0) == nil && args.Get(1) != nil {
		src := args.Get(1).(*models.Client)
		*dest = *src
	}
	return args.Error(0)
}

func (m *mockClientRepository) GetByName(ctx context.Context, instanceID uuid.UUID, name string, dest *models.Client) error {
	args := m.Called(ctx, instanceID, name, dest)
	return args.Error(0)
}

func (m *mockClientRepository) ListBySequence(ctx context.Context, sequenceID uuid.UUID) ([]models.Client, error) {
	args := m.Called(ctx, sequenceID)
	if v := args.Get(0); v != nil {
		return v.([]models.Client), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) Create(ctx context.Context, instance *models.Instance, callbackURL string) error {
	args := m.Called(ctx, instance, callbackURL)
	return args.Error(0)
}

func (m *mockProvisioner) Delete(ctx context.Context, instance *models.Instance) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*asynq.TaskInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPoller struct {
	mock.Mock
}

func (m *mockPoller) AwaitReady(ctx context.Context, target certsapi.Prober) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}
