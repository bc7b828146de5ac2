package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/events"
	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrDuplicateJob = errors.New("job already registered")
)

// Counts is what one tick handled.
type Counts struct {
	Processed int
	Failed    int
}

// Job is a fixed-interval unit of work. Batch jobs set Run. Per-VM jobs set
// List and Each, and optionally Before, which runs once ahead of the fan-out.
type Job struct {
	Name     string
	Interval time.Duration

	Run func(ctx context.Context) (Counts, error)

	Before func(ctx context.Context) (Counts, error)
	List   func(ctx context.Context) ([]*models.VM, error)
	Each   func(ctx context.Context, vm *models.VM) error
}

func (j Job) perVM() bool {
	return j.List != nil && j.Each != nil
}

type SchedulerConfig struct {
	RunOnStart   bool
	Workers      int
	JobTimeout   time.Duration
	DrainTimeout time.Duration
	Now          func() time.Time
}

type Scheduler struct {
	config    SchedulerConfig
	publisher *events.Publisher

	mu      sync.Mutex
	jobs    map[string]Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func NewScheduler(cfg SchedulerConfig, publisher *events.Publisher) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		config:    cfg,
		publisher: publisher,
		jobs:      make(map[string]Job),
		inflight:  make(map[string]struct{}),
	}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil && !job.perVM() {
		return fmt.Errorf("job %s has nothing to run", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s needs a positive interval", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	s.jobs[job.Name] = job
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
	logger.Infof("Scheduler started with %d jobs", len(s.jobs))
	return nil
}

// Stop halts dispatch, lets in-flight VM work finish within the drain
// timeout, and waits for every job goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow runs one job synchronously, outside its ticker.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*models.JobRun, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	run := s.tick(ctx, job)
	if run.Error != "" {
		return run, errors.New(run.Error)
	}
	return run, nil
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(s.ctx, job)
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.ctx, job)
		}
	}
}

// tick runs job once and records the outcome. A panic is logged and
// recorded as a failed run.
func (s *Scheduler) tick(ctx context.Context, job Job) (run *models.JobRun) {
	log := logger.WithJob(job.Name)
	run = &models.JobRun{Job: job.Name, StartedAt: s.config.Now()}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Job panicked: %v\n%s", r, debug.Stack())
			run.Error = fmt.Sprintf("panic: %v", r)
		}
		run.FinishedAt = s.config.Now()
		metrics.Get().ObserveJob(job.Name, run.FinishedAt.Sub(run.StartedAt), run.Error == "", run.Failed)
		s.publisher.JobFinished(run)
	}()

	var (
		counts Counts
		err    error
	)
	if job.perVM() {
		counts, err = s.fanOut(ctx, job)
	} else {
		runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
		counts, err = job.Run(runCtx)
		cancel()
	}

	run.Processed = counts.Processed
	run.Failed = counts.Failed
	if err != nil {
		run.Error = err.Error()
		log.WithError(err).Error("Job failed")
		return run
	}
	log.Debugf("Job finished: %d processed, %d failed", counts.Processed, counts.Failed)
	return run
}

// fanOut dispatches job.Each over the listed VMs with bounded concurrency.
// Once ctx is cancelled no new VM is dispatched, and running work keeps a
// detached context until the drain timeout elapses.
func (s *Scheduler) fanOut(ctx context.Context, job Job) (Counts, error) {
	var counts Counts

	if job.Before != nil {
		before, err := job.Before(ctx)
		if err != nil {
			logger.WithJob(job.Name).WithError(err).Warn("Pre-step failed")
		}
		counts.Processed += before.Processed
		counts.Failed += before.Failed
	}

	vms, err := job.List(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to list VMs: %w", err)
	}

	workCtx, cancelWork := context.WithTimeout(context.WithoutCancel(ctx), s.config.JobTimeout)
	defer cancelWork()
	stopDrain := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(s.config.DrainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancelWork()
		case <-workCtx.Done():
		}
	})
	defer stopDrain()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.config.Workers)
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			counts.Failed++
			return
		}
		counts.Processed++
	}

	for _, vm := range vms {
		if ctx.Err() != nil {
			break
		}
		key := job.Name + "/" + vm.ID
		if !s.acquire(key) {
			logger.WithJob(job.Name).WithField("vm_id", vm.ID).Debug("Previous run still in flight, skipping VM")
			continue
		}

		// select picks at random when both cases are ready, so a free slot
		// is checked against ctx again before it is used.
		slot := false
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			slot = true
		}
		if ctx.Err() != nil {
			if slot {
				<-sem
			}
			s.release(key)
			break
		}

		wg.Add(1)
		go func(vm *models.VM) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.release(key)
			record(s.runEach(workCtx, job, vm))
		}(vm)
	}
	wg.Wait()

	if ctx.Err() != nil {
		logger.WithJob(job.Name).Info("Dispatch stopped, in-flight VMs drained")
	}
	return counts, nil
}

func (s *Scheduler) runEach(ctx context.Context, job Job, vm *models.VM) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithJob(job.Name).WithField("vm_id", vm.ID).Errorf("VM step panicked: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := job.Each(ctx, vm); err != nil {
		logger.WithJob(job.Name).WithField("vm_id", vm.ID).WithError(err).Warn("VM step failed")
		return err
	}
	return nil
}

func (s *Scheduler) acquire(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(key string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, key)
}
