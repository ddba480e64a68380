package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

// Opener connects to the device. A failure is fatal to the run.
type Opener func(port string, baud int) (Channel, error)

// RunController owns the channel and counters of a single run and drives it
// cycle by cycle.
type RunController struct {
	cfg      *domain.RunConfig
	executor *CycleExecutor
	handler  ResultHandler
	logger   zerolog.Logger

	channel  Channel
	counters domain.RunCounters
	started  time.Time

	stopped atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc

	cleanupOnce sync.Once
	summary     domain.Summary
}

func NewRunController(cfg *domain.RunConfig, logger zerolog.Logger, handler ResultHandler) *RunController {
	return &RunController{
		cfg:      cfg,
		executor: NewCycleExecutor(cfg, logger),
		handler:  handler,
		logger:   logger,
	}
}

// Stop asks the run to end. Commands already in flight finish first; no
// further command or cycle is started.
func (c *RunController) Stop() {
	if c.stopped.Swap(true) {
		return
	}
	c.logger.Info().Msg("Stopping test execution.")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Run opens the channel and executes every configured cycle. It returns the
// final summary; the error is a *domain.ConnectionError when the port could
// not be opened, or the context error when the run was stopped early.
func (c *RunController) Run(ctx context.Context, open Opener) (summary domain.Summary, err error) {
	c.started = time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	if c.stopped.Load() {
		cancel()
	}

	ch, err := open(c.cfg.Port, c.cfg.BaudRate)
	if err != nil {
		c.logger.Error().Msgf("Failed to connect to %s: %v", c.cfg.Port, err)
		return domain.NewSummary(c.cfg, c.counters), err
	}
	c.channel = ch
	c.logger.Info().Msgf("Connected to %s at %d baud.", c.cfg.Port, c.cfg.BaudRate)

	defer func() {
		summary = c.cleanup(ctx.Err() != nil)
	}()

	if err := c.settle(ctx); err != nil {
		return summary, err
	}

	total := c.cfg.Cycles
	for cycle := 1; cycle <= total; cycle++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		c.logger.Info().Msgf("Starting cycle %d/%d", cycle, total)
		c.handler.OnStart(cycle)

		startedAt := time.Now()
		accepted, err := c.executor.RunCycle(ctx, c.channel, c.cfg.Commands, &c.counters)
		if err != nil {
			c.logger.Info().Msg("Script interrupted by user.")
			return summary, err
		}
		c.counters.Cycles++

		c.handler.OnComplete(domain.CycleResult{
			Cycle:       cycle,
			TotalCycles: total,
			Accepted:    accepted,
			Counters:    c.counters,
			StartedAt:   startedAt,
			FinishedAt:  time.Now(),
		})
		c.logger.Info().Msgf("Cycle: %d/%d completed with status: %s", cycle, total, statusText(accepted))
	}

	return summary, nil
}

// settle gives devices that need it time to boot after the port opens and
// discards whatever they printed meanwhile.
func (c *RunController) settle(ctx context.Context) error {
	d := c.cfg.Profile.OpenSettle
	if d <= 0 {
		return nil
	}
	if err := sleepContext(ctx, d); err != nil {
		return err
	}
	if err := c.channel.ResetInputBuffer(); err != nil {
		c.logger.Warn().Err(err).Msg("Could not reset input buffer")
	}
	if err := c.channel.ResetOutputBuffer(); err != nil {
		c.logger.Warn().Err(err).Msg("Could not reset output buffer")
	}
	return nil
}

func (c *RunController) cleanup(interrupted bool) domain.Summary {
	c.cleanupOnce.Do(func() {
		if c.channel != nil {
			if err := c.channel.Close(); err != nil {
				c.logger.Warn().Msgf("Error closing serial connection: %v", err)
			} else {
				c.logger.Info().Msg("Serial connection closed.")
			}
		}

		s := domain.NewSummary(c.cfg, c.counters)
		s.Stopped = interrupted || c.stopped.Load()
		s.Duration = time.Since(c.started)

		c.logger.Info().Msg("Test Summary:")
		c.logger.Info().Msgf("Total commands executed: %d", s.Commands)
		c.logger.Info().Msgf("Total errors encountered: %d", s.Errors)
		c.logger.Info().Msgf("Total timeouts encountered: %d", s.Timeouts)
		c.logger.Info().Msgf("Total cycles completed: %d", s.CyclesCompleted)

		c.handler.OnFinish(s)
		c.summary = s
	})
	return c.summary
}

// Counters returns a copy of the current counters.
func (c *RunController) Counters() domain.RunCounters {
	return c.counters
}

func statusText(accepted bool) string {
	if accepted {
		return "Success"
	}
	return "Failed"
}
