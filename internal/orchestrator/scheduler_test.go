package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func vmList(n int) []*models.VM {
	out := make([]*models.VM, n)
	for i := range out {
		out[i] = &models.VM{ID: fmt.Sprintf("vm-%d", i+1)}
	}
	return out
}

func listOf(vms []*models.VM) func(context.Context) ([]*models.VM, error) {
	return func(context.Context) ([]*models.VM, error) { return vms, nil }
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	noop := func(context.Context) (Counts, error) { return Counts{}, nil }

	require.NoError(t, s.Register(Job{Name: "a", Interval: time.Minute, Run: noop}))
	assert.ErrorIs(t, s.Register(Job{Name: "a", Interval: time.Minute, Run: noop}), ErrDuplicateJob)
	assert.Error(t, s.Register(Job{Name: "b", Interval: 0, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "c", Interval: time.Minute}))
	assert.Equal(t, []string{"a"}, s.Jobs())

	_, err := s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestScheduler_FanOutIsBoundedAndIsolated(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Workers: 2}, nil)

	var active, peak int32
	require.NoError(t, s.Register(Job{
		Name:     "poll",
		Interval: time.Minute,
		List:     listOf(vmList(8)),
		Each: func(ctx context.Context, vm *models.VM) error {
			n := atomic.AddInt32(&active, 1)
			defer atomic.AddInt32(&active, -1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)

			switch vm.ID {
			case "vm-2":
				return errors.New("provider error")
			case "vm-5":
				panic("unexpected nil")
			}
			return nil
		},
	}))

	run, err := s.RunNow(context.Background(), "poll")
	require.NoError(t, err)
	assert.Equal(t, 6, run.Processed)
	assert.Equal(t, 2, run.Failed)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestScheduler_BeforeStepCounts(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	var order []string
	var mu sync.Mutex
	note := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}

	require.NoError(t, s.Register(Job{
		Name:     "snapshots",
		Interval: time.Hour,
		Before: func(context.Context) (Counts, error) {
			note("sync")
			return Counts{Processed: 2}, nil
		},
		List: listOf(vmList(1)),
		Each: func(context.Context, *models.VM) error {
			note("create")
			return nil
		},
	}))

	run, err := s.RunNow(context.Background(), "snapshots")
	require.NoError(t, err)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, []string{"sync", "create"}, order)
}

func TestScheduler_PanickingTickDoesNotStopFutureTicks(t *testing.T) {
	s := NewScheduler(SchedulerConfig{RunOnStart: true}, nil)

	var calls int32
	require.NoError(t, s.Register(Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) (Counts, error) {
			atomic.AddInt32(&calls, 1)
			panic("boom")
		},
	}))

	run, err := s.RunNow(context.Background(), "flaky")
	require.Error(t, err)
	assert.Contains(t, run.Error, "panic: boom")

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 4 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestScheduler_SkipsVMStillInFlight(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	require.NoError(t, s.Register(Job{
		Name:     "poll",
		Interval: time.Minute,
		List:     listOf(vmList(1)),
		Each: func(ctx context.Context, vm *models.VM) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		},
	}))

	done := make(chan *models.JobRun)
	go func() {
		run, _ := s.RunNow(context.Background(), "poll")
		done <- run
	}()
	<-started

	second, err := s.RunNow(context.Background(), "poll")
	require.NoError(t, err)
	assert.Zero(t, second.Processed)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Processed)
}

func TestScheduler_StopDrainsInFlightWork(t *testing.T) {
	s := NewScheduler(SchedulerConfig{RunOnStart: true, Workers: 1, DrainTimeout: time.Second}, nil)

	started := make(chan struct{})
	var once sync.Once
	var completed int32
	var ctxErr atomic.Value

	require.NoError(t, s.Register(Job{
		Name:     "poll",
		Interval: time.Hour,
		List:     listOf(vmList(5)),
		Each: func(ctx context.Context, vm *models.VM) error {
			once.Do(func() { close(started) })
			time.Sleep(100 * time.Millisecond)
			ctxErr.Store(fmt.Sprint(ctx.Err()))
			atomic.AddInt32(&completed, 1)
			return nil
		},
	}))

	require.NoError(t, s.Start())
	<-started
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))
	assert.Equal(t, "<nil>", ctxErr.Load())
}

func TestScheduler_CancelledTickDispatchesNothing(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Workers: 8}, nil)

	var dispatched int32
	job := Job{
		Name:     "poll",
		Interval: time.Hour,
		List:     listOf(vmList(8)),
		Each: func(ctx context.Context, vm *models.VM) error {
			atomic.AddInt32(&dispatched, 1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 200; i++ {
		counts, err := s.fanOut(ctx, job)
		require.NoError(t, err)
		assert.Zero(t, counts.Processed+counts.Failed)
	}
	assert.Zero(t, atomic.LoadInt32(&dispatched))
	assert.Empty(t, s.inflight)
}

func TestScheduler_CancelMidTickStopsDispatch(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Workers: 4, DrainTimeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var dispatched int32
	job := Job{
		Name:     "poll",
		Interval: time.Hour,
		List:     listOf(vmList(50)),
		Each: func(ctx context.Context, vm *models.VM) error {
			if atomic.AddInt32(&dispatched, 1) == 2 {
				cancel()
			}
			return nil
		},
	}

	counts, err := s.fanOut(ctx, job)
	require.NoError(t, err)
	n := atomic.LoadInt32(&dispatched)
	assert.Equal(t, int(n), counts.Processed)
	// At most the workers already holding a slot finish after the cancel.
	assert.LessOrEqual(t, n, int32(2+4))
}
