// Package scheduler drives jobs through the research and audit phases.
//
// One Scheduler instance owns an in-memory FIFO queue of job ids and a
// bounded set of in-flight jobs. The durable store is the source of truth:
// the queue is rebuilt from pending jobs on every loop tick, so a process
// restart loses nothing but a few seconds of latency.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/policyglass/policyglass/internal/audit"
	"github.com/policyglass/policyglass/internal/cache"
	"github.com/policyglass/policyglass/internal/config"
	"github.com/policyglass/policyglass/internal/notify"
	"github.com/policyglass/policyglass/internal/research"
	"github.com/policyglass/policyglass/internal/store"
)

// ResearchExecutor runs the research phase for a source URL.
type ResearchExecutor interface {
	Run(ctx context.Context, url string) (research.Result, error)
}

// AuditExecutor runs the audit phase against a stored policy.
type AuditExecutor interface {
	Run(ctx context.Context, policyID int64) (audit.Result, error)
}

// Broadcaster delivers progress events to whoever is listening. The
// scheduler does not care about the transport behind it.
type Broadcaster interface {
	Broadcast(msg notify.Message)
	TotalSubscribers() int
}

// Stats is a point-in-time snapshot for health and monitoring endpoints.
type Stats struct {
	IsRunning                  bool `json:"is_running"`
	QueueLength                int  `json:"queue_length"`
	ActiveCount                int  `json:"active_count"`
	MaxConcurrency             int  `json:"max_concurrency"`
	TotalSubscriberConnections int  `json:"total_subscriber_connections"`
}

// Scheduler owns the processing loop, the dispatch queue, and the expiry reaper.
type Scheduler struct {
	store       store.Store
	cache       cache.Cache
	researchSvc ResearchExecutor
	auditSvc    AuditExecutor
	broadcaster Broadcaster
	cfg         config.SchedulerConfig
	logger      *slog.Logger

	sem *semaphore.Weighted

	mu      sync.Mutex
	queue   []uuid.UUID
	queued  map[uuid.UUID]struct{}
	active  map[uuid.UUID]struct{}
	running bool
	cancel  context.CancelFunc

	loopWg sync.WaitGroup
}

func New(st store.Store, ca cache.Cache, researchSvc ResearchExecutor, auditSvc AuditExecutor, broadcaster Broadcaster, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	// Config loading clamps this already; guard again so a hand-built
	// config cannot produce a zero-weight semaphore.
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxConcurrent > 10 {
		cfg.MaxConcurrent = 10
	}
	return &Scheduler{
		store:       st,
		cache:       ca,
		researchSvc: researchSvc,
		auditSvc:    auditSvc,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		queued:      make(map[uuid.UUID]struct{}),
		active:      make(map[uuid.UUID]struct{}),
	}
}

// Start launches the processing loop and the expiry reaper. Calling Start
// while already running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("scheduler already running")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"max_concurrent", s.cfg.MaxConcurrent,
		"phase_timeout", s.cfg.PhaseTimeout)

	s.loopWg.Add(2)
	go s.runLoop(ctx)
	go s.runReaper(ctx)
}

// Stop signals the loop and reaper to exit and waits for them. In-flight
// phase executions are not cancelled; they finish in the background.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.loopWg.Wait()
	s.logger.Info("scheduler stopped")
}

// Enqueue adds a job id to the dispatch queue. Ids already queued or
// currently active are ignored, so the call is idempotent per job.
func (s *Scheduler) Enqueue(jobID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[jobID]; ok {
		return
	}
	if _, ok := s.active[jobID]; ok {
		return
	}
	s.queued[jobID] = struct{}{}
	s.queue = append(s.queue, jobID)
}

// RemoveFromQueue removes a queued-but-undispatched job and reports whether
// it did. A job that is already active (or was never queued) returns false;
// its in-flight execution is unaffected.
func (s *Scheduler) RemoveFromQueue(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queued[jobID]; !ok {
		return false
	}
	delete(s.queued, jobID)
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	return true
}

// Stats returns a snapshot of the scheduler's current state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		IsRunning:                  s.running,
		QueueLength:                len(s.queue),
		ActiveCount:                len(s.active),
		MaxConcurrency:             s.cfg.MaxConcurrent,
		TotalSubscriberConnections: s.broadcaster.TotalSubscribers(),
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.loopWg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.reconcile(ctx); err != nil {
			s.logger.Error("reconciliation failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ErrorBackoff):
			}
			continue
		}
		s.dispatch()
	}
}

// reconcile pulls a batch of pending jobs from the store into the queue.
// The store scan is what makes the queue self-healing across restarts.
func (s *Scheduler) reconcile(ctx context.Context) error {
	ids, err := s.store.ListPendingJobs(ctx, s.cfg.PendingBatchSize)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.Enqueue(id)
	}
	return nil
}

// dispatch launches queued jobs until the queue drains or the concurrency
// bound is reached. Processing is fire-and-forget with respect to the loop.
func (s *Scheduler) dispatch() {
	for {
		if !s.sem.TryAcquire(1) {
			return
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			s.sem.Release(1)
			return
		}
		jobID := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, jobID)
		s.active[jobID] = struct{}{}
		s.mu.Unlock()

		go func(id uuid.UUID) {
			requeue := false
			defer func() {
				s.mu.Lock()
				delete(s.active, id)
				s.mu.Unlock()
				s.sem.Release(1)
				// Re-enqueue must happen after the id leaves the active
				// set, or the membership check would drop it.
				if requeue {
					s.Enqueue(id)
				}
			}()
			requeue = s.processJob(id)
		}(jobID)
	}
}

func (s *Scheduler) runReaper(ctx context.Context) {
	defer s.loopWg.Done()

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		count, err := s.store.DeleteExpiredJobs(ctx, time.Now().UTC())
		if err != nil {
			s.logger.Error("expired job cleanup failed", "error", err)
			continue
		}
		if count > 0 {
			s.logger.Info("reaped expired jobs", "count", count)
		}
	}
}
