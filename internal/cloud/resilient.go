package cloud

import (
	"context"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/resilience"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// ResilientAdapter guards an adapter with a per-provider circuit breaker and
// retries idempotent calls. Mutating calls (start, stop, reboot, snapshot
// creation) are attempted once so a retry can never duplicate them.
type ResilientAdapter struct {
	next    Adapter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

var _ Adapter = (*ResilientAdapter)(nil)

type ResilientConfig struct {
	MaxFailures   int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientAdapter(next Adapter, cfg ResilientConfig) *ResilientAdapter {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}

	provider := string(next.Provider())
	return &ResilientAdapter{
		next: next,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:          provider,
			MaxFailures:   cfg.MaxFailures,
			Timeout:       cfg.Timeout,
			IsFailure:     IsTransient,
			OnStateChange: cfg.OnStateChange,
		}),
		retry: resilience.RetryConfig{
			Attempts:  cfg.RetryAttempts,
			Delay:     cfg.RetryDelay,
			Retryable: IsTransient,
			OnRetry: func(attempt int, err error) {
				logger.WithProvider(provider).Warnf("Provider call attempt %d/%d failed: %v", attempt, cfg.RetryAttempts, err)
			},
		},
	}
}

func (a *ResilientAdapter) CircuitState() resilience.State {
	return a.breaker.State()
}

func (a *ResilientAdapter) once(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := a.breaker.ExecuteContext(ctx, fn)
	if err == resilience.ErrCircuitOpen {
		return &ProviderError{Provider: a.next.Provider(), Op: op, Message: "circuit open", Err: err}
	}
	return err
}

func (a *ResilientAdapter) retried(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return a.once(ctx, op, func(ctx context.Context) error {
		return resilience.Retry(ctx, a.retry, fn)
	})
}

func (a *ResilientAdapter) Provider() models.Provider {
	return a.next.Provider()
}

func (a *ResilientAdapter) ListInstances(ctx context.Context, region string) ([]Instance, error) {
	var out []Instance
	err := a.retried(ctx, "list_instances", func(ctx context.Context) error {
		var err error
		out, err = a.next.ListInstances(ctx, region)
		return err
	})
	return out, err
}

func (a *ResilientAdapter) GetState(ctx context.Context, t Target) (models.VMState, error) {
	var out models.VMState
	err := a.retried(ctx, "get_state", func(ctx context.Context) error {
		var err error
		out, err = a.next.GetState(ctx, t)
		return err
	})
	return out, err
}

func (a *ResilientAdapter) Start(ctx context.Context, t Target) error {
	return a.once(ctx, "start", func(ctx context.Context) error { return a.next.Start(ctx, t) })
}

func (a *ResilientAdapter) Stop(ctx context.Context, t Target) error {
	return a.once(ctx, "stop", func(ctx context.Context) error { return a.next.Stop(ctx, t) })
}

func (a *ResilientAdapter) Reboot(ctx context.Context, t Target) error {
	return a.once(ctx, "reboot", func(ctx context.Context) error { return a.next.Reboot(ctx, t) })
}

func (a *ResilientAdapter) ListVolumes(ctx context.Context, t Target) ([]string, error) {
	var out []string
	err := a.retried(ctx, "list_volumes", func(ctx context.Context) error {
		var err error
		out, err = a.next.ListVolumes(ctx, t)
		return err
	})
	return out, err
}

func (a *ResilientAdapter) CreateSnapshot(ctx context.Context, t Target, volumeID, name, description string) (*SnapshotRef, error) {
	var out *SnapshotRef
	err := a.once(ctx, "create_snapshot", func(ctx context.Context) error {
		var err error
		out, err = a.next.CreateSnapshot(ctx, t, volumeID, name, description)
		return err
	})
	return out, err
}

func (a *ResilientAdapter) SnapshotStatus(ctx context.Context, t Target, snapshotID string) (*SnapshotRef, error) {
	var out *SnapshotRef
	err := a.retried(ctx, "snapshot_status", func(ctx context.Context) error {
		var err error
		out, err = a.next.SnapshotStatus(ctx, t, snapshotID)
		return err
	})
	return out, err
}

func (a *ResilientAdapter) DeleteSnapshot(ctx context.Context, t Target, snapshotID string) error {
	return a.retried(ctx, "delete_snapshot", func(ctx context.Context) error {
		return a.next.DeleteSnapshot(ctx, t, snapshotID)
	})
}

func (a *ResilientAdapter) GetMetrics(ctx context.Context, t Target, window time.Duration) ([]*models.MetricSample, error) {
	var out []*models.MetricSample
	err := a.retried(ctx, "get_metrics", func(ctx context.Context) error {
		var err error
		out, err = a.next.GetMetrics(ctx, t, window)
		return err
	})
	return out, err
}
