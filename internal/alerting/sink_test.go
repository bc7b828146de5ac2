package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/internal/store/memory"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	// release, when set, holds every delivery until it is closed.
	release chan struct{}
}

func (f *fakeNotifier) Channel() models.NotificationChannel { return models.ChannelEmail }

func (f *fakeNotifier) Notify(ctx context.Context, user *models.User, alert *models.Alert) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("smtp unavailable")
	}
	return nil
}

func (f *fakeNotifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	sink     *Sink
	alerts   *memory.AlertStore
	clock    *clock
	notifier *fakeNotifier
}

func newFixture(emailAlerts bool) *fixture {
	f := &fixture{
		alerts:   memory.NewAlertStore(),
		clock:    &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &fakeNotifier{},
	}
	users := memory.NewUserStore(&models.User{
		ID:          "u1",
		Email:       "ops@example.com",
		Preferences: models.Preferences{EmailAlerts: emailAlerts},
		IsActive:    true,
	})
	f.sink = NewSink(Config{
		RetryDelay: time.Millisecond,
		Now:        f.clock.Now,
	}, f.alerts, users, []Notifier{f.notifier}, nil)
	return f
}

func candidate(vmID string, typ models.AlertType) *models.Alert {
	return &models.Alert{
		UserID:    "u1",
		VMID:      vmID,
		AlertType: typ,
		Severity:  models.SeverityHigh,
		Title:     "High CPU usage on web",
		Message:   "CPU utilization is 92.50%, which exceeds the threshold of 80%",
	}
}

func TestRequest_Dedup(t *testing.T) {
	tests := []struct {
		name     string
		between  func(f *fixture, first *models.Alert)
		second   *models.Alert
		inserted bool
	}{
		{
			name:     "same key inside window is suppressed",
			between:  func(f *fixture, _ *models.Alert) { f.clock.Advance(59 * time.Minute) },
			second:   candidate("vm-1", models.AlertCPUHigh),
			inserted: false,
		},
		{
			name:     "same key after window is inserted",
			between:  func(f *fixture, _ *models.Alert) { f.clock.Advance(61 * time.Minute) },
			second:   candidate("vm-1", models.AlertCPUHigh),
			inserted: true,
		},
		{
			name:     "other vm is inserted",
			second:   candidate("vm-2", models.AlertCPUHigh),
			inserted: true,
		},
		{
			name:     "other type is inserted",
			second:   candidate("vm-1", models.AlertMemoryHigh),
			inserted: true,
		},
		{
			name: "resolved alert no longer suppresses",
			between: func(f *fixture, first *models.Alert) {
				_, err := f.sink.Resolve(context.Background(), "u1", first.ID, "ops", "")
				if err != nil {
					panic(err)
				}
			},
			second:   candidate("vm-1", models.AlertCPUHigh),
			inserted: true,
		},
		{
			name: "escalation to critical is still suppressed",
			second: func() *models.Alert {
				c := candidate("vm-1", models.AlertCPUHigh)
				c.Severity = models.SeverityCritical
				return c
			}(),
			inserted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false)
			ctx := context.Background()

			first := candidate("vm-1", models.AlertCPUHigh)
			ok, err := f.sink.Request(ctx, first)
			require.NoError(t, err)
			require.True(t, ok)
			assert.NotEmpty(t, first.ID)
			assert.Equal(t, models.AlertStatusActive, first.Status)

			if tt.between != nil {
				tt.between(f, first)
			}

			ok, err = f.sink.Request(ctx, tt.second)
			require.NoError(t, err)
			assert.Equal(t, tt.inserted, ok)

			want := 1
			if tt.inserted {
				want = 2
			}
			assert.Equal(t, want, f.alerts.Count())
		})
	}
}

func TestRequest_ConcurrentCandidatesInsertOnce(t *testing.T) {
	f := newFixture(false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sink.Request(context.Background(), candidate("vm-1", models.AlertCPUHigh))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.alerts.Count())
	assert.Zero(t, f.sink.keys.size())
}

func TestRequest_InsertFailure(t *testing.T) {
	f := newFixture(true)
	f.alerts.InsertErr = errors.New("connection reset")

	ok, err := f.sink.Request(context.Background(), candidate("vm-1", models.AlertCPUHigh))
	assert.False(t, ok)

	var perr *store.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "alert", perr.Entity)
	assert.Zero(t, f.notifier.Calls())

	// A retry after the store recovers re-checks the window and inserts once.
	f.alerts.InsertErr = nil
	ok, err = f.sink.Request(context.Background(), candidate("vm-1", models.AlertCPUHigh))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.alerts.Count())
}

func TestRequest_Notification(t *testing.T) {
	tests := []struct {
		name        string
		emailAlerts bool
		failures    int
		wantCalls   int
		wantSuccess bool
	}{
		{"opted out", false, 0, 0, false},
		{"first attempt succeeds", true, 0, 1, true},
		{"succeeds on retry", true, 2, 3, true},
		{"gives up after retries", true, 5, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.emailAlerts)
			f.notifier.failures = tt.failures

			c := candidate("vm-1", models.AlertCPUHigh)
			ok, err := f.sink.Request(context.Background(), c)
			require.NoError(t, err)
			require.True(t, ok)
			f.sink.Wait()
			assert.Equal(t, tt.wantCalls, f.notifier.Calls())
			assert.Equal(t, 1, f.alerts.Count())

			stored, err := f.alerts.Get(context.Background(), c.ID)
			require.NoError(t, err)
			require.Len(t, stored.Notifications, tt.wantCalls)
			if tt.wantCalls == 0 {
				return
			}
			last := stored.Notifications[len(stored.Notifications)-1]
			assert.Equal(t, models.ChannelEmail, last.Channel)
			assert.Equal(t, tt.wantSuccess, last.Success)
			if !tt.wantSuccess {
				assert.Equal(t, "smtp unavailable", last.Error)
			}
		})
	}
}

func TestRequest_SlowNotifierDoesNotBlockCaller(t *testing.T) {
	f := newFixture(true)
	f.notifier.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ok, err := f.sink.Request(context.Background(), candidate("vm-1", models.AlertCPUHigh))
		assert.NoError(t, err)
		assert.True(t, ok)
		// Same key again: dedup still answers while the first delivery hangs.
		ok, err = f.sink.Request(context.Background(), candidate("vm-1", models.AlertCPUHigh))
		assert.NoError(t, err)
		assert.False(t, ok)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Request blocked on notification delivery")
	}
	assert.Zero(t, f.notifier.Calls())

	close(f.notifier.release)
	f.sink.Wait()
	assert.Equal(t, 1, f.notifier.Calls())
	assert.Equal(t, 1, f.alerts.Count())
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []models.AlertStatus
		wantErr error
	}{
		{"acknowledge then resolve", []models.AlertStatus{models.AlertStatusAcknowledged, models.AlertStatusResolved}, nil},
		{"resolve directly", []models.AlertStatus{models.AlertStatusResolved}, nil},
		{"ignore", []models.AlertStatus{models.AlertStatusIgnored}, nil},
		{"resolved is terminal", []models.AlertStatus{models.AlertStatusResolved, models.AlertStatusAcknowledged}, ErrInvalidTransition},
		{"ignored cannot resolve", []models.AlertStatus{models.AlertStatusIgnored, models.AlertStatusResolved}, ErrInvalidTransition},
		{"acknowledged cannot be ignored", []models.AlertStatus{models.AlertStatusAcknowledged, models.AlertStatusIgnored}, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false)
			ctx := context.Background()
			c := candidate("vm-1", models.AlertCPUHigh)
			_, err := f.sink.Request(ctx, c)
			require.NoError(t, err)

			var lastErr error
			for _, step := range tt.steps {
				switch step {
				case models.AlertStatusAcknowledged:
					_, lastErr = f.sink.Acknowledge(ctx, "u1", c.ID, "ops")
				case models.AlertStatusResolved:
					_, lastErr = f.sink.Resolve(ctx, "u1", c.ID, "ops", " rebooted ")
				case models.AlertStatusIgnored:
					_, lastErr = f.sink.Ignore(ctx, "u1", c.ID)
				}
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, lastErr, tt.wantErr)
				return
			}
			require.NoError(t, lastErr)

			stored, err := f.alerts.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.steps[len(tt.steps)-1], stored.Status)
			if stored.Status == models.AlertStatusResolved {
				require.NotNil(t, stored.ResolvedAt)
				assert.Equal(t, "ops", stored.ResolvedBy)
				assert.Equal(t, "rebooted", stored.ResolutionNotes)
			}
		})
	}
}

func TestTransitions_OtherUsersAlertIsNotFound(t *testing.T) {
	f := newFixture(false)
	c := candidate("vm-1", models.AlertCPUHigh)
	_, err := f.sink.Request(context.Background(), c)
	require.NoError(t, err)

	_, err = f.sink.Acknowledge(context.Background(), "someone-else", c.ID, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.sink.Ignore(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
