package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFail = errors.New("fail")

func tripped(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb := NewCircuitBreaker(cfg)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	for i := 0; i < cfg.MaxFailures; i++ {
		_ = cb.Execute(func() error { return errFail })
	}
	require.Equal(t, StateOpen, cb.State())
	return cb, &now
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		config        CircuitBreakerConfig
		setup         func(cb *CircuitBreaker, now *time.Time)
		expectedState State
	}{
		{
			name:   "stays open inside timeout",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute},
			setup: func(cb *CircuitBreaker, now *time.Time) {
				*now = now.Add(30 * time.Second)
				_ = cb.Execute(func() error { return nil })
			},
			expectedState: StateOpen,
		},
		{
			name:   "half-open after timeout",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute},
			setup: func(cb *CircuitBreaker, now *time.Time) {
				*now = now.Add(2 * time.Minute)
				_ = cb.Execute(func() error { return nil })
			},
			expectedState: StateHalfOpen,
		},
		{
			name:   "closes after enough half-open successes",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute, HalfOpenMax: 2},
			setup: func(cb *CircuitBreaker, now *time.Time) {
				*now = now.Add(2 * time.Minute)
				for i := 0; i < 2; i++ {
					_ = cb.Execute(func() error { return nil })
				}
			},
			expectedState: StateClosed,
		},
		{
			name:   "half-open failure reopens",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Minute},
			setup: func(cb *CircuitBreaker, now *time.Time) {
				*now = now.Add(2 * time.Minute)
				_ = cb.Execute(func() error { return errFail })
			},
			expectedState: StateOpen,
		},
		{
			name:   "reset returns to closed",
			config: CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Hour},
			setup: func(cb *CircuitBreaker, now *time.Time) {
				cb.Reset()
			},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, now := tripped(t, tt.config)

			tt.setup(cb, now)

			assert.Equal(t, tt.expectedState, cb.State())
		})
	}
}

func TestCircuitBreaker_OpenRejects(t *testing.T) {
	cb, _ := tripped(t, CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Hour})

	called := false
	err := cb.Execute(func() error { called = true; return nil })

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	benign := errors.New("not found")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 2,
		IsFailure:   func(err error) bool { return !errors.Is(err, benign) },
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return benign }), benign)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})

	err := cb.ExecuteContext(context.Background(), func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = cb.ExecuteContext(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	changes := make(chan State, 1)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "aws",
		MaxFailures: 1,
		OnStateChange: func(name string, from, to State) {
			changes <- to
		},
	})

	_ = cb.Execute(func() error { return errFail })

	select {
	case to := <-changes:
		assert.Equal(t, StateOpen, to)
	case <-time.After(time.Second):
		t.Fatal("state change callback not called")
	}
}

func TestRetry(t *testing.T) {
	permanent := errors.New("permanent")

	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first try succeeds", failures: 0, err: errFail, attempts: 3, wantCalls: 1},
		{name: "succeeds on third", failures: 2, err: errFail, attempts: 3, wantCalls: 3},
		{name: "exhausts attempts", failures: 5, err: errFail, attempts: 3, wantCalls: 3, wantErr: true},
		{name: "stops on non-retryable", failures: 5, err: permanent, attempts: 3, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), RetryConfig{
				Attempts:  tt.attempts,
				Delay:     time.Millisecond,
				Retryable: func(err error) bool { return !errors.Is(err, permanent) },
			}, func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, RetryConfig{Attempts: 5, Delay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return errFail
	})

	assert.ErrorIs(t, err, errFail)
	assert.Equal(t, 1, calls)
}
