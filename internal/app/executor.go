package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

// Channel is the serial link a cycle is driven over.
type Channel interface {
	Write(data []byte) error
	ReadLine(total, poll time.Duration) ([]byte, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Flush() error
	Close() error
}

// Exchange is the record of one command sent and its feedback.
type Exchange struct {
	Index    int
	Command  string
	Outcome  domain.Outcome
	Accepted bool
	Err      error
}

// CycleExecutor runs the command sequence of one cycle. Failed exchanges are
// counted and either tolerated or end the cycle, depending on the profile;
// none of them is fatal.
type CycleExecutor struct {
	profile domain.Profile
	delay   time.Duration
	logger  zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	pause func(d time.Duration)
}

func NewCycleExecutor(cfg *domain.RunConfig, logger zerolog.Logger) *CycleExecutor {
	return &CycleExecutor{
		profile: cfg.Profile,
		delay:   cfg.Delay,
		logger:  logger,
		sleep:   sleepContext,
		pause:   time.Sleep,
	}
}

// RunCycle sends every command in order and reports whether all of them were
// accepted. The only error it returns is the context's, when the run is
// stopped between commands; the cycle is then incomplete.
func (e *CycleExecutor) RunCycle(ctx context.Context, ch Channel, commands []string, counters *domain.RunCounters) (bool, error) {
	accepted := true
	total := len(commands)

	for i, command := range commands {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		ex := e.Exchange(ch, command, counters)
		ex.Index = i + 1

		if ex.Accepted {
			e.logger.Info().Msgf("Command %d/%d succeeded with valid feedback.", ex.Index, total)
		} else {
			accepted = false
			if e.profile.AbortOnFailure {
				e.logger.Warn().Msgf("Command %d/%d failed to receive valid feedback. Stopping command sequence for this cycle.", ex.Index, total)
				break
			}
			e.logger.Warn().Msgf("Command %d/%d failed to receive valid feedback.", ex.Index, total)
		}

		if ex.Accepted || e.profile.DelayAlways {
			if e.delay > 0 {
				e.logger.Info().Msgf("Waiting for %s before sending next command...", e.delay)
			}
			if err := e.sleep(ctx, e.delay); err != nil {
				return false, err
			}
		}
	}

	return accepted, nil
}

// Exchange performs one send/await/classify round trip and updates counters.
func (e *CycleExecutor) Exchange(ch Channel, command string, counters *domain.RunCounters) Exchange {
	p := e.profile
	ex := Exchange{Command: strings.TrimRight(command, "\r\n")}

	e.logger.Info().Msgf("Sending command: %s", ex.Command)
	counters.Commands++

	if p.ResetBeforeSend {
		if err := ch.ResetInputBuffer(); err != nil {
			e.logger.Warn().Err(err).Msg("Could not reset input buffer")
		}
	}

	if err := ch.Write(Frame(command)); err != nil {
		return e.failed(ex, err, "Exception while sending command", counters)
	}

	if p.FlushAfterSend {
		if err := ch.Flush(); err != nil {
			return e.failed(ex, err, "Exception while flushing command", counters)
		}
	}

	if p.Read.Settle > 0 {
		e.pause(p.Read.Settle)
	}

	raw, err := ch.ReadLine(p.Read.Total, p.Read.Poll)
	if err != nil {
		return e.failed(ex, err, "Exception while processing feedback", counters)
	}

	e.logger.Info().Msgf("Feedback: %q", raw)

	ex.Outcome = domain.Classify(raw, p)
	e.record(ex.Outcome, counters)
	ex.Accepted = p.Accepted(ex.Outcome)

	return ex
}

func (e *CycleExecutor) failed(ex Exchange, err error, msg string, counters *domain.RunCounters) Exchange {
	e.logger.Error().Msgf("%s: %v", msg, err)
	counters.Errors++
	ex.Err = err
	return ex
}

func (e *CycleExecutor) record(o domain.Outcome, counters *domain.RunCounters) {
	switch o.Kind {
	case domain.OutcomeSuccess:
		e.logger.Info().Msgf("Success: Received valid success code (%d).", o.Code)
	case domain.OutcomeExpectedZero:
		e.logger.Info().Msg("Valid feedback received (0). Ready for next command.")
	case domain.OutcomeTimeout:
		e.logger.Warn().Msg("Timeout occurred.")
		counters.Timeouts++
	case domain.OutcomeUnexpectedCode:
		e.logger.Error().Msgf("Unexpected feedback code: %d", o.Code)
		counters.Errors++
	case domain.OutcomeMalformed:
		e.logger.Error().Msgf("Malformed feedback: %q", o.Raw)
		counters.Errors++
	case domain.OutcomeEmpty:
		if e.profile.EmptyIsTimeout {
			e.logger.Error().Msg("Received empty feedback or timeout.")
			counters.Timeouts++
		} else {
			e.logger.Error().Msg("Received empty feedback.")
			counters.Errors++
		}
	}
}

// Frame appends exactly one line terminator unless the command already ends
// with one.
func Frame(command string) []byte {
	if strings.HasSuffix(command, string(domain.LineTerminator)) {
		return []byte(command)
	}
	return []byte(command + string(domain.LineTerminator))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
