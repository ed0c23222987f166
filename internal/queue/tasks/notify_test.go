package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/notify"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// Mock implementations
type mockInstances struct {
	mock.Mock
}

func (m *mockInstances) GetByID(ctx context.Context, id any, dest *models.Instance) error {
	args := m.Called(ctx, id, dest)
	if args.Error(0) == nil && args.Get(1) != nil {
		src := args.Get(1).(*models.Instance)
		*dest = *src
	}
	return args.Error(0)
}

type mockPoller struct {
	mock.Mock
}

func (m *mockPoller) AwaitReady(ctx context.Context, target certsapi.Prober) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockWebhooks struct {
	mock.Mock
}

func (m *mockWebhooks) Post(ctx context.Context, url string, payload any) error {
	args := m.Called(ctx, url, payload)
	return args.Error(0)
}

func strPtr(s string) *string { return &s }

func completedInstance() *models.Instance {
	now := time.Now().UTC()
	return &models.Instance{
		ID:               uuid.New(),
		OwnerID:          "owner-1",
		ServerName:       "alpha",
		TFOutputs:        datatypes.JSON(`{"dns_name":{"value":"alpha.example.com"},"cert_api_token":{"value":"tok"}}`),
		TFCompleted:      &now,
		ReadyEmail:       strPtr("owner@example.com"),
		ReadyCallbackURL: strPtr("https://hooks.example.com/ready"),
	}
}

func notifyTask(t *testing.T, typename string, id uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := NewNotifyTask(typename, id, time.Minute)
	require.NoError(t, err)
	return task
}

type fixture struct {
	instances *mockInstances
	poller    *mockPoller
	mailer    *mockMailer
	webhooks  *mockWebhooks
	handler   *NotifyTaskHandler
}

func newFixture() *fixture {
	f := &fixture{
		instances: &mockInstances{},
		poller:    &mockPoller{},
		mailer:    &mockMailer{},
		webhooks:  &mockWebhooks{},
	}
	f.handler = NewNotifyTaskHandler(f.instances, f.poller, f.mailer, f.webhooks, links.New("https://tak.example.com"), "https", http.DefaultClient)
	return f
}

func (f *fixture) assert(t *testing.T) {
	mock.AssertExpectationsForObjects(t, f.instances, f.poller, f.mailer, f.webhooks)
}

func TestNewNotifyTask(t *testing.T) {
	id := uuid.New()
	task := notifyTask(t, TypeNotifyEmail, id)
	require.Equal(t, TypeNotifyEmail, task.Type())

	var p NotifyPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, id.String(), p.InstanceID)
}

func TestNotifyTaskHandler_HandleEmail(t *testing.T) {
	t.Run("mail sent after readiness", func(t *testing.T) {
		f := newFixture()
		inst := completedInstance()

		f.instances.On("GetByID", mock.Anything, inst.ID, mock.AnythingOfType("*models.Instance")).Return(nil, inst).Once()
		f.poller.On("AwaitReady", mock.Anything, mock.AnythingOfType("*certsapi.Client")).Return(nil).Once()
		f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
			return msg.To == "owner@example.com" &&
				msg.Subject == notify.ReadySubject &&
				strings.Contains(msg.Body, "/api/v1/tak/instances/"+inst.ID.String()+"/instructions/enduser")
		})).Return(nil).Once()

		require.NoError(t, f.handler.HandleEmail(context.Background(), notifyTask(t, TypeNotifyEmail, inst.ID)))
		f.assert(t)
	})

	t.Run("delivery failure is swallowed", func(t *testing.T) {
		f := newFixture()
		inst := completedInstance()

		f.instances.On("GetByID", mock.Anything, inst.ID, mock.AnythingOfType("*models.Instance")).Return(nil, inst).Once()
		f.poller.On("AwaitReady", mock.Anything, mock.Anything).Return(nil).Once()
		f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

		require.NoError(t, f.handler.HandleEmail(context.Background(), notifyTask(t, TypeNotifyEmail, inst.ID)))
		f.assert(t)
	})

	t.Run("nothing sent when never ready", func(t *testing.T) {
		f := newFixture()
		inst := completedInstance()

		f.instances.On("GetByID", mock.Anything, inst.ID, mock.AnythingOfType("*models.Instance")).Return(nil, inst).Once()
		f.poller.On("AwaitReady", mock.Anything, mock.Anything).Return(context.DeadlineExceeded).Once()

		err := f.handler.HandleEmail(context.Background(), notifyTask(t, TypeNotifyEmail, inst.ID))
		require.ErrorIs(t, err, context.DeadlineExceeded)
		f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		f.assert(t)
	})

	t.Run("deleted instance is skipped", func(t *testing.T) {
		f := newFixture()
		id := uuid.New()
		f.instances.On("GetByID", mock.Anything, id, mock.AnythingOfType("*models.Instance")).
			Return(appErr.New(appErr.CodeNotFound, "not found"), nil).Once()

		require.NoError(t, f.handler.HandleEmail(context.Background(), notifyTask(t, TypeNotifyEmail, id)))
		f.assert(t)
	})

	t.Run("store failure is reported", func(t *testing.T) {
		f := newFixture()
		id := uuid.New()
		f.instances.On("GetByID", mock.Anything, id, mock.AnythingOfType("*models.Instance")).
			Return(appErr.New(appErr.CodeInternal, "internal error"), nil).Once()

		err := f.handler.HandleEmail(context.Background(), notifyTask(t, TypeNotifyEmail, id))
		require.True(t, appErr.IsCode(err, appErr.CodeInternal), "got %v", err)
		f.poller.AssertNotCalled(t, "AwaitReady", mock.Anything, mock.Anything)
		f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		f.assert(t)
	})

	t.Run("bad payload skips retry", func(t *testing.T) {
		f := newFixture()
		err := f.handler.HandleEmail(context.Background(), asynq.NewTask(TypeNotifyEmail, []byte(`{"instance_id":"nope"}`)))
		require.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNotifyTaskHandler_HandleWebhook(t *testing.T) {
	t.Run("posts instance representation", func(t *testing.T) {
		f := newFixture()
		inst := completedInstance()

		f.instances.On("GetByID", mock.Anything, inst.ID, mock.AnythingOfType("*models.Instance")).Return(nil, inst).Once()
		f.poller.On("AwaitReady", mock.Anything, mock.Anything).Return(nil).Once()
		f.webhooks.On("Post", mock.Anything, "https://hooks.example.com/ready", mock.MatchedBy(func(p types.InstanceResponse) bool {
			return p.ID == inst.ID && len(p.TFOutputs) > 0 && p.EndUserInstructions != ""
		})).Return(nil).Once()

		require.NoError(t, f.handler.HandleWebhook(context.Background(), notifyTask(t, TypeNotifyWebhook, inst.ID)))
		f.assert(t)
	})

	t.Run("no callback url means no post", func(t *testing.T) {
		f := newFixture()
		inst := completedInstance()
		inst.ReadyCallbackURL = nil

		f.instances.On("GetByID", mock.Anything, inst.ID, mock.AnythingOfType("*models.Instance")).Return(nil, inst).Once()
		f.poller.On("AwaitReady", mock.Anything, mock.Anything).Return(nil).Once()

		require.NoError(t, f.handler.HandleWebhook(context.Background(), notifyTask(t, TypeNotifyWebhook, inst.ID)))
		f.webhooks.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything)
		f.assert(t)
	})

	t.Run("webhook failure is swallowed", func(t *testing.T) {
		f := newFixture()
		inst := completedInstance()

		f.instances.On("GetByID", mock.Anything, inst.ID, mock.AnythingOfType("*models.Instance")).Return(nil, inst).Once()
		f.poller.On("AwaitReady", mock.Anything, mock.Anything).Return(nil).Once()
		f.webhooks.On("Post", mock.Anything, mock.Anything, mock.Anything).Return(notify.ErrWebhook).Once()

		require.NoError(t, f.handler.HandleWebhook(context.Background(), notifyTask(t, TypeNotifyWebhook, inst.ID)))
		f.assert(t)
	})
}
