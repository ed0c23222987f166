package certsapi

import (
	"context"
	"errors"
	"time"

	"github.com/pvarki/takbackend/pkg/logger"
	"go.uber.org/zap"
)

// DefaultPollInterval is the fixed gap between readiness probes.
const DefaultPollInterval = 30 * time.Second

// Prober is satisfied by *Client.
type Prober interface {
	Ping(ctx context.Context) error
}

// Poller blocks until an instance's certificate API answers its liveness
// probe. There is no attempt cap: only ctx ends the wait, except for
// ErrUnauthorized which is returned at once.
type Poller struct {
	interval time.Duration
}

func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval}
}

func (p *Poller) AwaitReady(ctx context.Context, target Prober) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		err := target.Ping(ctx)
		if err == nil {
			if attempt > 1 {
				logger.L().Info("certificate api ready", zap.Int("attempts", attempt))
			}
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			logger.L().Error("certificate api refused credentials, giving up", zap.Error(err))
			return err
		}
		logger.L().Info("certificate api not ready yet",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", p.interval),
			zap.Error(err),
		)
		timer.Reset(p.interval)
	}
}
