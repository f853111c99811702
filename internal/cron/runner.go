package cronrunner

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules reconciliation passes. Scheduled and manual runs of the
// same job share one skip-if-still-running chain.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context

	mu       sync.Mutex
	runs     int
	done     chan struct{}
	doneOnce sync.Once
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}
	return &Runner{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger:  logger,
		baseCtx: baseCtx,
		done:    make(chan struct{}),
	}
}

// Add registers job under a cron spec such as "@every 5m".
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddJob(spec, r.wrap(0, func(ctx context.Context) bool {
		job(ctx)
		return true
	}))
}

// Every schedules job at a fixed interval and returns a handle that runs the
// same chained job on demand. job reports whether it actually ran; skipped
// runs do not count. After loops completed runs (loops > 0) Done is closed
// and later ticks are ignored.
func (r *Runner) Every(interval time.Duration, loops int, job func(context.Context) bool) cron.Job {
	wrapped := r.wrap(loops, job)
	r.cron.Schedule(cron.Every(interval), wrapped)
	return wrapped
}

func (r *Runner) wrap(loops int, job func(context.Context) bool) cron.Job {
	cl := cronLogger{s: r.logger.Sugar()}
	// own is serialized by the SkipIfStillRunning chain.
	var own int
	return cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		if r.baseCtx.Err() != nil {
			return
		}
		if loops > 0 && own >= loops {
			return
		}
		if !job(r.baseCtx) {
			return
		}
		own++
		r.finish()
		if loops > 0 && own >= loops {
			r.logger.Info("loop limit reached", zap.Int("loops", loops))
			r.doneOnce.Do(func() { close(r.done) })
		}
	}))
}

func (r *Runner) completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func (r *Runner) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

// Done is closed once the loop limit of an Every job is reached.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Runs returns the number of completed runs across all jobs.
func (r *Runner) Runs() int {
	return r.completed()
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
