package processor

import (
	"context"
	"time"

	"github.com/nimasrn/smm-storefront/pkg/logger"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

type Job interface {
	Name() string
	Run(ctx context.Context) (SyncResult, error)
}

type ScheduledJob struct {
	Spec    string
	Job     Job
	Timeout time.Duration
}

// Scheduler runs periodic jobs. A run that is still going when its next
// tick fires makes that tick a no-op.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(jobs ...ScheduledJob) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	log := cronLogger{}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)), cron.WithLogger(log)),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, sj := range jobs {
		if sj.Spec == "" {
			continue
		}
		sj := sj
		if _, err := s.cron.AddFunc(sj.Spec, func() { s.run(sj) }); err != nil {
			cancel()
			return nil, errors.Wrapf(err, "schedule %s with %q", sj.Job.Name(), sj.Spec)
		}
		logger.Info("job scheduled", "job", sj.Job.Name(), "spec", sj.Spec)
	}
	return s, nil
}

func (s *Scheduler) run(sj ScheduledJob) {
	ctx := s.ctx
	if sj.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sj.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := sj.Job.Run(ctx)
	if err != nil {
		logger.Error("job failed", "job", sj.Job.Name(), "error", err, "checked", result.Checked)
		return
	}
	logger.Info("job finished",
		"job", sj.Job.Name(),
		"checked", result.Checked,
		"changed", result.Changed,
		"errors", result.Errors,
		"took", time.Since(start).String())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("[cron] "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("[cron] "+msg, append(keysAndValues, "error", err)...)
}
