// Package refresh decides, before every read, whether cached prices are too
// old and runs the refresh job when they are.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.RefreshCoordinator = (*Coordinator)(nil)

const flightKey = "refresh"

// errAbandoned is the cancellation cause of a run whose every waiter left.
var errAbandoned = errors.New("refresh abandoned by all callers")

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 60 * time.Second

// Coordinator owns lastGlobalRefreshAt and guarantees at most one job run in
// flight. Forced callers only accept a forced run that started after they
// asked. A run is cancelled once no caller is waiting on it.
type Coordinator struct {
	job     interfaces.RefreshJob
	logger  *common.Logger
	clock   func() time.Time
	window  time.Duration
	timeout time.Duration
	hooks   []func()

	group singleflight.Group

	mu         sync.Mutex
	last       time.Time
	generation uint64 // incremented when a run starts
	running    int
	checking   int
	waiters    int
	abandon    context.CancelCauseFunc // cancels the run in flight
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithStalenessWindow overrides the 2h default.
func WithStalenessWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithTimeout bounds each job run.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInvalidation registers a hook run after every successful refresh,
// before waiting callers are released.
func WithInvalidation(hook func()) Option {
	return func(c *Coordinator) { c.hooks = append(c.hooks, hook) }
}

// NewCoordinator creates a Coordinator around job.
func NewCoordinator(job interfaces.RefreshJob, logger *common.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		job:     job,
		logger:  logger,
		clock:   time.Now,
		window:  common.StalenessWindow,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the coordinator's current state.
func (c *Coordinator) State() models.RefreshState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.running > 0:
		return models.RefreshStateRefreshing
	case c.checking > 0:
		return models.RefreshStateChecking
	default:
		return models.RefreshStateIdle
	}
}

// LastRefreshedAt returns lastGlobalRefreshAt, zero if never refreshed.
func (c *Coordinator) LastRefreshedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// StalenessWindow returns the configured window.
func (c *Coordinator) StalenessWindow() time.Duration {
	return c.window
}

// Status returns a snapshot for operators.
func (c *Coordinator) Status() models.RefreshStatus {
	return models.RefreshStatus{
		State:           c.State(),
		LastRefreshedAt: c.LastRefreshedAt(),
		StalenessWindow: c.window.String(),
		Waiters:         c.Waiters(),
	}
}

// Waiters returns the number of callers blocked on a refresh.
func (c *Coordinator) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters
}

// EnsureFresh refreshes prices when forced or when the last refresh is older
// than the staleness window, waiting for the job to finish.
func (c *Coordinator) EnsureFresh(ctx context.Context, force bool) (models.RefreshOutcome, error) {
	if !force {
		c.mu.Lock()
		c.checking++
		c.mu.Unlock()

		fresh := c.isFresh(ctx)

		c.mu.Lock()
		c.checking--
		c.mu.Unlock()

		if fresh {
			c.logger.Debug().Msg("Prices fresh, refresh skipped")
			return models.RefreshSkipped, nil
		}
	}
	return c.refresh(ctx, force)
}

// isFresh seeds lastGlobalRefreshAt from the persisted marker when unset,
// then applies the window. Exactly window-old data is still fresh.
func (c *Coordinator) isFresh(ctx context.Context) bool {
	last := c.LastRefreshedAt()
	if last.IsZero() {
		marker, err := c.job.LastRefreshed(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to read last refresh marker")
		} else if !marker.IsZero() {
			c.mu.Lock()
			if c.last.Before(marker) {
				c.last = marker
			}
			last = c.last
			c.mu.Unlock()
		}
	}
	return common.IsFresh(last, c.clock(), c.window)
}

type runResult struct {
	generation uint64
	forced     bool
	skipped    bool
}

// satisfies reports whether a finished run answers a request made when the
// generation counter stood at requested. A forced request needs a forced run
// that started after it; a run that started earlier may have read the ledger
// before the change that triggered the request, and a non-forced run leaves
// tickers inside the window alone.
func (rr runResult) satisfies(force bool, requested uint64) bool {
	if !force {
		return true
	}
	return rr.forced && rr.generation > requested
}

// leave drops a waiter. The last waiter to give up cancels the run in flight,
// so a refresh nobody waits for does not advance lastGlobalRefreshAt.
func (c *Coordinator) leave(gaveUp bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters--
	if gaveUp && c.waiters == 0 && c.abandon != nil {
		c.abandon(errAbandoned)
	}
}

func (c *Coordinator) refresh(ctx context.Context, force bool) (models.RefreshOutcome, error) {
	c.mu.Lock()
	requested := c.generation
	c.waiters++
	c.mu.Unlock()

	for {
		ch := c.group.DoChan(flightKey, func() (any, error) {
			return c.run(ctx, force)
		})

		select {
		case <-ctx.Done():
			c.leave(true)
			err := ctx.Err()
			c.logger.Warn().Err(err).Bool("force", force).Msg("Refresh wait abandoned by caller")
			if errors.Is(err, context.DeadlineExceeded) {
				return models.RefreshFailed, models.NewRefreshTimeout(err)
			}
			return models.RefreshFailed, &models.RefreshError{Cause: err}

		case res := <-ch:
			rr, _ := res.Val.(runResult)
			if errors.Is(res.Err, errAbandoned) && ctx.Err() == nil {
				// Joined a run its previous waiters had just given up on
				continue
			}
			if !rr.satisfies(force, requested) {
				continue
			}
			c.leave(false)
			if res.Err != nil {
				if errors.Is(res.Err, context.DeadlineExceeded) {
					return models.RefreshFailed, models.NewRefreshTimeout(res.Err)
				}
				return models.RefreshFailed, &models.RefreshError{Cause: res.Err}
			}
			if rr.skipped {
				return models.RefreshSkipped, nil
			}
			return models.RefreshRefreshed, nil
		}
	}
}

// run executes the job on a context detached from the caller and bounded by
// the job timeout, so one caller giving up does not fail the others. The run
// is cancelled with errAbandoned when its last waiter leaves.
func (c *Coordinator) run(ctx context.Context, force bool) (runResult, error) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	// A non-forced run re-checks: a run that finished between the caller's
	// check and this point already made the data fresh.
	if !force && common.IsFresh(c.LastRefreshedAt(), c.clock(), c.window) {
		return runResult{generation: gen, skipped: true}, nil
	}

	base, abandon := context.WithCancelCause(context.WithoutCancel(ctx))
	defer abandon(nil)
	runCtx, cancel := context.WithTimeout(base, c.timeout)
	defer cancel()

	c.mu.Lock()
	c.running++
	c.abandon = abandon
	if c.waiters == 0 {
		abandon(errAbandoned)
	}
	c.mu.Unlock()

	start := c.clock()
	c.logger.Info().Bool("force", force).Uint64("generation", gen).Msg("Price refresh started")
	err := c.job.Run(runCtx, force)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil && errors.Is(context.Cause(base), errAbandoned) {
		err = errAbandoned
	}
	finished := c.clock()

	c.mu.Lock()
	c.running--
	c.abandon = nil
	if err == nil {
		c.last = finished
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error().Err(err).Bool("force", force).Dur("elapsed", finished.Sub(start)).Msg("Price refresh failed")
		return runResult{generation: gen, forced: force}, err
	}

	for _, hook := range c.hooks {
		hook()
	}
	c.logger.Info().Bool("force", force).Dur("elapsed", finished.Sub(start)).Msg("Price refresh completed")
	return runResult{generation: gen, forced: force}, nil
}
