package actionq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dropbot/internal/eventbus"
	rtsup "dropbot/internal/runtime/supervisor"
	"dropbot/internal/transport"
	"dropbot/pkg/logx"
)

// Service is the single outbound lane. All platform mutations flow through
// it in enqueue order.
type Service struct {
	log   logx.Logger
	bus   eventbus.Bus
	pacer *Pacer
	exec  Executor

	mu   sync.Mutex
	jobs []Job
	wake chan struct{}

	startOnce sync.Once
	sup       *rtsup.Supervisor
}

func New(cfg PacerConfig, log logx.Logger, bus eventbus.Bus, exec Executor) *Service {
	return &Service{
		log:   log.With(logx.String("comp", "actionq")),
		bus:   bus,
		pacer: NewPacer(cfg),
		exec:  exec,
		wake:  make(chan struct{}, 1),
	}
}

// Pacer exposes the shared pacer so executors can pace class-specific waits
// inside job bodies.
func (s *Service) Pacer() *Pacer { return s.pacer }

// SetExecutor installs the job executor. Must happen before Start; the
// executor usually needs the lane constructed first, hence the two-step
// wiring.
func (s *Service) SetExecutor(exec Executor) { s.exec = exec }

// Apply swaps the pacing parameters at runtime.
func (s *Service) Apply(cfg PacerConfig) { s.pacer.Apply(cfg) }

// Start launches the worker loop. Safe to call once.
func (s *Service) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
		s.sup.Go("actionq.worker", s.run)
	})
	return nil
}

// Stop cancels the worker and waits for it to drain its current job.
func (s *Service) Stop(ctx context.Context) error {
	if s.sup == nil {
		return nil
	}
	s.sup.Cancel()
	return s.sup.Wait(ctx)
}

// Enqueue appends a job to the tail of the lane. It never blocks and never
// reports back; callers that care about results must not use it.
func (s *Service) Enqueue(job Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	depth := len(s.jobs)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	s.log.Debug("job enqueued",
		logx.String("job", job.ID),
		logx.String("kind", string(job.Kind)),
		logx.Int("depth", depth))
}

// Len reports the number of jobs waiting in the lane.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Service) pop() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return Job{}, false
	}
	job := s.jobs[0]
	s.jobs[0] = Job{}
	s.jobs = s.jobs[1:]
	if len(s.jobs) == 0 {
		s.jobs = nil
	}
	return job, true
}

func (s *Service) run(ctx context.Context) error {
	s.log.Info("worker started")
	for {
		job, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				s.log.Info("worker stopped")
				return nil
			case <-s.wake:
			}
			continue
		}

		s.execute(ctx, job)

		if ctx.Err() != nil {
			s.log.Info("worker stopped")
			return nil
		}
		s.pacer.Pause(ctx, ClassAction)
	}
}

func (s *Service) execute(ctx context.Context, job Job) {
	start := time.Now()
	err := s.exec.Execute(ctx, job)
	switch {
	case err == nil:
		s.log.Debug("job done",
			logx.String("job", job.ID),
			logx.String("kind", string(job.Kind)),
			logx.Duration("took", time.Since(start)))
	case errors.Is(err, transport.ErrPermissionDenied):
		s.log.Debug("job skipped, permission denied",
			logx.String("job", job.ID),
			logx.String("kind", string(job.Kind)))
	case errors.Is(err, context.Canceled):
		// shutdown raced the job; nothing to report
	default:
		s.log.Warn("job failed",
			logx.String("job", job.ID),
			logx.String("kind", string(job.Kind)),
			logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeJobFailed,
				Data: map[string]string{
					"job":   job.ID,
					"kind":  string(job.Kind),
					"error": err.Error(),
				},
			})
		}
	}
}
