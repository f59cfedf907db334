// Package polling drives repeated status checks against an eventually
// consistent upstream until the observed state becomes terminal, the
// attempt budget runs out, or the caller gives up.
package polling

import (
	"context"
	"log/slog"
	"time"

	"verigate/internal/provider"
	dErrors "verigate/pkg/domain-errors"
)

// CheckFunc performs one status check.
type CheckFunc func(ctx context.Context) (provider.Status, error)

// Config bounds a polling run.
type Config struct {
	MaxAttempts int
	Interval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 60
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	return c
}

// Poller runs bounded polling loops.
type Poller struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Poller {
	return &Poller{cfg: cfg.withDefaults(), logger: logger}
}

// Poll checks until a terminal status is observed or the attempt budget is
// exhausted. Transient errors count as an attempt and are retried; hard
// errors abort immediately. Cancelling the context stops the wait between
// attempts and returns ctx.Err().
//
// Running out of attempts is a timeout, not a verification failure: the
// returned error carries CodeTimeout and the last observed status is
// returned alongside it.
func (p *Poller) Poll(ctx context.Context, operationID string, check CheckFunc) (provider.Status, error) {
	var last provider.Status

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		status, err := check(ctx)
		switch {
		case err == nil:
			last = status
			if status.State.Terminal() {
				return status, nil
			}
		case provider.IsTransient(err):
			p.log(ctx, slog.LevelWarn, "transient provider error while polling",
				slog.String("operation_id", operationID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		default:
			return last, dErrors.Wrap(err, dErrors.CodeUnavailable, "provider status check failed")
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}

		if err := sleep(ctx, p.cfg.Interval); err != nil {
			return last, err
		}
	}

	p.log(ctx, slog.LevelInfo, "polling budget exhausted",
		slog.String("operation_id", operationID),
		slog.Int("attempts", p.cfg.MaxAttempts),
	)
	return last, dErrors.New(dErrors.CodeTimeout, "verification did not reach a terminal state in time")
}

func (p *Poller) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Log(ctx, level, msg, attrs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
