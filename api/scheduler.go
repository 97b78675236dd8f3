/*
scheduler.go - Expiry sweep scheduler

PURPOSE:
  Periodically runs the engine's expiry sweep: overdue waiting_payment
  transactions become expired, overdue waiting_confirmation transactions
  become canceled, and stale point grants are flipped inactive.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - One pass fires immediately on Start, then on every tick
  - An in-flight guard skips a tick if the previous pass is still running
  - RunNow triggers an extra pass for tests and the admin endpoint

CONFIGURATION:
  - Interval: How often to sweep (default: 5 minutes)
  - Config:   Deadlines passed through to the engine

USAGE:
  sweeper := api.NewExpirySweeper(engine, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - ticketing/sweep.go: The sweep pass itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// DefaultSweepInterval is how often the sweeper fires.
const DefaultSweepInterval = 5 * time.Minute

// ExpirySweeper drives periodic expiry sweeps.
type ExpirySweeper struct {
	Engine   *ticketing.Engine
	Logger   *logrus.Logger
	Interval time.Duration
	Config   ticketing.SweepConfig

	ticker   *time.Ticker
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight bool
}

// NewExpirySweeper creates a sweeper with the default interval and
// deadlines.
func NewExpirySweeper(engine *ticketing.Engine, logger *logrus.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		Engine:   engine,
		Logger:   logger,
		Interval: DefaultSweepInterval,
		Config:   ticketing.DefaultSweepConfig(),
		stop:     make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (es *ExpirySweeper) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		return
	}
	es.stop = make(chan struct{})
	es.ticker = time.NewTicker(es.Interval)
	es.wg.Add(1)
	go es.run()

	es.Logger.WithField("interval", es.Interval).Info("expiry sweeper started")
}

// Stop halts the loop and waits for an in-flight pass to finish. The lock
// is not held across the wait: the sweep goroutine needs it for the
// in-flight guard.
func (es *ExpirySweeper) Stop() {
	es.mu.Lock()
	if es.ticker == nil {
		es.mu.Unlock()
		return
	}
	es.ticker.Stop()
	close(es.stop)
	es.mu.Unlock()

	es.wg.Wait()

	es.mu.Lock()
	es.ticker = nil
	es.mu.Unlock()
	es.Logger.Info("expiry sweeper stopped")
}

// RunNow performs a single sweep pass synchronously.
func (es *ExpirySweeper) RunNow(ctx context.Context) (ticketing.SweepResult, error) {
	return es.Engine.RunSweep(ctx, es.Config)
}

func (es *ExpirySweeper) run() {
	defer es.wg.Done()

	// First pass right away so a restart doesn't wait a full interval.
	es.sweep()

	for {
		select {
		case <-es.ticker.C:
			es.sweep()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpirySweeper) sweep() {
	es.mu.Lock()
	if es.inFlight {
		es.mu.Unlock()
		es.Logger.Warn("previous sweep still running, skipping tick")
		return
	}
	es.inFlight = true
	es.mu.Unlock()

	defer func() {
		es.mu.Lock()
		es.inFlight = false
		es.mu.Unlock()
	}()

	if _, err := es.Engine.RunSweep(context.Background(), es.Config); err != nil {
		es.Logger.WithError(err).Error("expiry sweep failed")
	}
}
