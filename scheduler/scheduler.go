package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shorts-bot/types"
)

// Runner executes a job once its fire time has come.
type Runner interface {
	Run(ctx context.Context, job types.ScheduledJob)
}

// Store persists pending jobs so they survive a restart.
type Store interface {
	Save(ctx context.Context, job types.ScheduledJob) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]types.ScheduledJob, error)
}

var ErrStopped = errors.New("scheduler stopped")

type entry struct {
	job   types.ScheduledJob
	timer *time.Timer
}

// Scheduler runs each enqueued job exactly once, at or after its FireAt.
// Jobs hold a snapshot payload and never touch session state.
type Scheduler struct {
	runner Runner
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

// New creates a scheduler. store may be nil, in which case pending jobs only
// live in memory.
func New(runner Runner, store Store, logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		store:   store,
		logger:  logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]*entry),
	}
}

// Enqueue persists and arms a job for payload firing at fireAt.
func (s *Scheduler) Enqueue(ctx context.Context, payload types.UploadRequest, fireAt time.Time) (types.ScheduledJob, error) {
	job := types.ScheduledJob{
		ID:         uuid.NewString(),
		FireAt:     fireAt,
		EnqueuedAt: s.now(),
		Payload:    payload,
	}

	if s.isStopped() {
		return types.ScheduledJob{}, ErrStopped
	}
	// The store call stays outside s.mu; fire takes the same lock.
	if s.store != nil {
		if err := s.store.Save(ctx, job); err != nil {
			return types.ScheduledJob{}, fmt.Errorf("persist job: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		// Left in the store for the next Restore.
		return types.ScheduledJob{}, ErrStopped
	}
	s.armLocked(job)
	s.logger.Info().
		Str("job_id", job.ID).
		Int64("chat_id", payload.ChatID).
		Time("fire_at", fireAt).
		Msg("job scheduled")
	return job, nil
}

// Restore re-arms every job found in the store. Jobs already due fire
// immediately. It returns the number of jobs armed.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	jobs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}
	n := 0
	for _, job := range jobs {
		if _, ok := s.pending[job.ID]; ok {
			continue
		}
		s.armLocked(job)
		n++
	}
	s.logger.Info().Int("jobs", n).Msg("restored scheduled jobs")
	return n, nil
}

// Pending returns the jobs that have not fired yet, soonest first.
func (s *Scheduler) Pending() []types.ScheduledJob {
	s.mu.Lock()
	jobs := make([]types.ScheduledJob, 0, len(s.pending))
	for _, e := range s.pending {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].FireAt.Before(jobs[j].FireAt) })
	return jobs
}

// Stop disarms all timers and waits for running jobs. Stored jobs are kept
// for the next Restore.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, e := range s.pending {
		e.timer.Stop()
	}
	s.pending = make(map[string]*entry)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Scheduler) armLocked(job types.ScheduledJob) {
	delay := job.FireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	id := job.ID
	e := &entry{job: job}
	e.timer = time.AfterFunc(delay, func() { s.fire(id) })
	s.pending[id] = e
}

// fire runs the job unless it already ran or the scheduler stopped. Removal
// from pending under the lock is what makes execution exactly-once.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.pending[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	// Wall clock may lag the timer after a clock change; never run early.
	if remaining := e.job.FireAt.Sub(s.now()); remaining > 0 {
		e.timer = time.AfterFunc(remaining, func() { s.fire(id) })
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	log := s.logger.With().Str("job_id", id).Int64("chat_id", e.job.Payload.ChatID).Logger()
	if s.store != nil {
		if err := s.store.Delete(s.ctx, id); err != nil {
			log.Warn().Err(err).Msg("failed to delete stored job")
		}
	}
	log.Info().Msg("job firing")
	s.runner.Run(s.ctx, e.job)
}
