package progress

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPercentStep = 25
	DefaultTimeStep    = 60 * time.Second
)

// Counter reports progress through a fixed-size batch each time the
// completion crosses a percent step or the time step elapses.
type Counter struct {
	Scope       string
	Stage       string
	RunID       string
	Total       int
	PercentStep int
	TimeStep    time.Duration
	Logger      *zap.Logger
	Hub         *Hub

	now         func() time.Time
	done        int
	nextPercent int
	lastReport  time.Time
}

func NewCounter(scope, stage string, total int, logger *zap.Logger, hub *Hub) *Counter {
	c := &Counter{
		Scope:       scope,
		Stage:       stage,
		Total:       total,
		PercentStep: DefaultPercentStep,
		TimeStep:    DefaultTimeStep,
		Logger:      logger,
		Hub:         hub,
		now:         time.Now,
	}
	c.nextPercent = c.PercentStep
	c.lastReport = c.now()
	return c
}

// Inc advances the counter by one and reports when due. It returns true when
// a report was emitted.
func (c *Counter) Inc() bool {
	if c == nil {
		return false
	}
	c.done++
	if c.Total <= 0 {
		return false
	}
	step := c.PercentStep
	if step <= 0 {
		step = DefaultPercentStep
	}
	if c.nextPercent <= 0 {
		c.nextPercent = step
	}
	pct := c.done * 100 / c.Total
	now := c.clock()
	due := false
	if pct >= c.nextPercent {
		due = true
		for c.nextPercent <= pct {
			c.nextPercent += step
		}
	}
	if c.TimeStep > 0 && now.Sub(c.lastReport) >= c.TimeStep {
		due = true
	}
	if !due {
		return false
	}
	c.lastReport = now
	c.report(pct, now)
	return true
}

func (c *Counter) Done() int {
	if c == nil {
		return 0
	}
	return c.done
}

func (c *Counter) report(pct int, now time.Time) {
	if c.Logger != nil {
		c.Logger.Info("sync progress",
			zap.String("scope", c.Scope),
			zap.String("stage", c.Stage),
			zap.Int("done", c.done),
			zap.Int("total", c.Total),
			zap.Int("percent", pct),
		)
	}
	c.Hub.Publish(Event{
		RunID:   c.RunID,
		Scope:   c.Scope,
		Stage:   c.Stage,
		Done:    c.done,
		Total:   c.Total,
		Percent: pct,
		At:      now.UTC(),
	})
}

func (c *Counter) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}
