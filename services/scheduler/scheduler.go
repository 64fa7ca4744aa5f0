package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/probestem/probe/core"
)

var ErrUnknownJob = errors.New("unknown job")

type (
	// Job is a named task run on a cron schedule.
	Job struct {
		Name string
		Spec string // cron spec, eg. "@every 15m" or "0 3 * * *"
		Run  func(ctx context.Context) error
	}

	// JobRecorder records job runs, eg. as metrics.
	JobRecorder interface {
		RecordJobRun(job string, success bool, duration time.Duration)
	}

	Scheduler struct {
		cron     *cron.Cron
		logger   core.Logger
		recorder JobRecorder
		ctx      context.Context
		cancel   context.CancelFunc

		mu   sync.RWMutex
		jobs map[string]Job
	}
)

// New returns a scheduler running jobs in UTC. recorder may be nil.
func New(logger core.Logger, recorder JobRecorder) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:   logger,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]Job),
	}
}

func (s *Scheduler) Add(jobs ...Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if _, ok := s.jobs[job.Name]; ok {
			return errors.Errorf("job %q already scheduled", job.Name)
		}
		job := job
		if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.run(job) }); err != nil {
			return errors.Wrapf(err, "scheduling job %q", job.Name)
		}
		s.jobs[job.Name] = job
	}
	return nil
}

// RunNow runs a scheduled job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownJob
	}
	return s.run(job)
}

func (s *Scheduler) run(job Job) error {
	start := time.Now()
	err := job.Run(s.ctx)
	if s.recorder != nil {
		s.recorder.RecordJobRun(job.Name, err == nil, time.Since(start))
	}
	if err != nil {
		s.logger.Error(fmt.Sprintf("scheduler: job %q failed: %v", job.Name, err), err)
	}
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for the running ones to complete, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// ignored: cron logs every schedule & wake up at this level
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v: %v", msg, keysAndValues, err), err)
}
