package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/pvarki/takbackend/internal/api/types"
	"github.com/pvarki/takbackend/internal/certsapi"
	"github.com/pvarki/takbackend/internal/links"
	"github.com/pvarki/takbackend/internal/models"
	"github.com/pvarki/takbackend/internal/notify"
	appErr "github.com/pvarki/takbackend/pkg/errors"
	"github.com/pvarki/takbackend/pkg/logger"
)

const (
	TypeNotifyEmail   = "instance:notify_email"
	TypeNotifyWebhook = "instance:notify_webhook"
)

// NotifyPayload is the task payload for both notification kinds.
type NotifyPayload struct {
	InstanceID string `json:"instance_id"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewNotifyTask builds a single-attempt notification task. timeout bounds the
// whole handler run, readiness wait included.
func NewNotifyTask(typename string, instanceID uuid.UUID, timeout time.Duration) (*asynq.Task, error) {
	pb, err := json.Marshal(NotifyPayload{InstanceID: instanceID.String()})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(typename, pb, opts...), nil
}

type InstanceGetter interface {
	GetByID(ctx context.Context, id any, dest *models.Instance) error
}

type ReadinessWaiter interface {
	AwaitReady(ctx context.Context, target certsapi.Prober) error
}

type WebhookPoster interface {
	Post(ctx context.Context, url string, payload any) error
}

// NotifyTaskHandler waits for a completed instance to come up and then tells
// whoever asked to be told.
type NotifyTaskHandler struct {
	instances   InstanceGetter
	poller      ReadinessWaiter
	mailer      notify.Mailer
	webhooks    WebhookPoster
	links       links.Builder
	certsScheme string
	certsHTTP   *http.Client
}

func NewNotifyTaskHandler(instances InstanceGetter, poller ReadinessWaiter, mailer notify.Mailer, webhooks WebhookPoster, lb links.Builder, certsScheme string, certsHTTP *http.Client) *NotifyTaskHandler {
	return &NotifyTaskHandler{
		instances:   instances,
		poller:      poller,
		mailer:      mailer,
		webhooks:    webhooks,
		links:       lb,
		certsScheme: certsScheme,
		certsHTTP:   certsHTTP,
	}
}

func (h *NotifyTaskHandler) HandleEmail(ctx context.Context, t *asynq.Task) error {
	inst, err := h.awaitInstance(ctx, t)
	if err != nil || inst == nil {
		return err
	}
	if inst.ReadyEmail == nil || *inst.ReadyEmail == "" {
		logger.L().Info("no ready email on instance, skipping", zap.String("instance_id", inst.ID.String()))
		return nil
	}

	msg, err := notify.ReadyMessage(*inst.ReadyEmail, notify.ReadyData{
		ServerName: inst.ServerName,
		URL:        h.links.EndUserInstructions(inst.ID),
	})
	if err != nil {
		logger.L().Error("render ready mail failed", zap.String("instance_id", inst.ID.String()), zap.Error(err))
		return nil
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		logger.L().Error("mail delivery failure", zap.String("instance_id", inst.ID.String()), zap.Error(err))
	}
	return nil
}

func (h *NotifyTaskHandler) HandleWebhook(ctx context.Context, t *asynq.Task) error {
	inst, err := h.awaitInstance(ctx, t)
	if err != nil || inst == nil {
		return err
	}
	if inst.ReadyCallbackURL == nil || *inst.ReadyCallbackURL == "" {
		logger.L().Info("no ready callback on instance, skipping", zap.String("instance_id", inst.ID.String()))
		return nil
	}

	payload := types.NewInstanceResponse(inst, types.InstanceURLs{
		EndUser: h.links.EndUserInstructions(inst.ID),
		Owner:   h.links.OwnerInstructions(inst.ID),
	}, true)
	if err := h.webhooks.Post(ctx, *inst.ReadyCallbackURL, payload); err != nil {
		logger.L().Error("webhook delivery failure", zap.String("instance_id", inst.ID.String()), zap.Error(err))
	}
	return nil
}

// awaitInstance decodes the payload, loads the instance and blocks until its
// certificate API is up. A nil instance with nil error means there is nothing
// left to do.
func (h *NotifyTaskHandler) awaitInstance(ctx context.Context, t *asynq.Task) (*models.Instance, error) {
	var p NotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid notify task payload", zap.String("type", t.Type()), zap.Error(err))
		return nil, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.InstanceID)
	if err != nil {
		logger.L().Error("invalid instance id in task", zap.String("type", t.Type()), zap.Error(err))
		return nil, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	logger.L().Info("handling notify task", zap.String("type", t.Type()), zap.String("instance_id", id.String()))

	var inst models.Instance
	if err := h.instances.GetByID(ctx, id, &inst); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			logger.L().Warn("instance gone before notification", zap.String("instance_id", id.String()))
			return nil, nil
		}
		logger.L().Error("load instance for notification failed", zap.String("instance_id", id.String()), zap.Error(err))
		return nil, err
	}

	certs, err := certsapi.FromOutputs(inst.TFOutputs, h.certsScheme, h.certsHTTP)
	if err != nil {
		logger.L().Error("cannot reach certificate api", zap.String("instance_id", id.String()), zap.Error(err))
		return nil, err
	}
	if err := h.poller.AwaitReady(ctx, certs); err != nil {
		logger.L().Error("instance never became ready", zap.String("instance_id", id.String()), zap.Error(err))
		return nil, err
	}
	return &inst, nil
}
