package domain

import (
	"time"
)

type VerbosityLevel string
type OutputFormat string

const (
	VerbositySilent  VerbosityLevel = "silent"
	VerbosityNormal  VerbosityLevel = "normal"
	VerbosityVerbose VerbosityLevel = "verbose"
)

const (
	FormatTUI  OutputFormat = "tui"
	FormatJSON OutputFormat = "json"
	FormatRaw  OutputFormat = "raw"
)

// LineTerminator ends every command on the wire and every feedback line.
const LineTerminator = '\n'

type RunConfig struct {
	Port       string
	BaudRate   int
	Cycles     int
	Commands   []string
	Delay      time.Duration
	Profile    Profile
	InstanceID string
	Project    string
	Format     OutputFormat
	Verbosity  VerbosityLevel
	LogDir     string
}

// RunCounters is owned by a single run and only ever grows.
type RunCounters struct {
	Commands int
	Errors   int
	Timeouts int
	Cycles   int
}

type CycleResult struct {
	Cycle       int
	TotalCycles int
	Accepted    bool
	Counters    RunCounters
	StartedAt   time.Time
	FinishedAt  time.Time
}

type Summary struct {
	InstanceID      string
	Commands        int
	Errors          int
	Timeouts        int
	CyclesCompleted int
	Stopped         bool
	Duration        time.Duration
}

// NewSummary derives completed cycles from the attempted command count.
func NewSummary(cfg *RunConfig, counters RunCounters) Summary {
	s := Summary{
		InstanceID: cfg.InstanceID,
		Commands:   counters.Commands,
		Errors:     counters.Errors,
		Timeouts:   counters.Timeouts,
	}
	if n := len(cfg.Commands); n > 0 {
		s.CyclesCompleted = counters.Commands / n
	}
	return s
}
