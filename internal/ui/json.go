package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

// ProgressRecord is the line emitted after every cycle. Consumers parse
// these from stdout to follow long soak tests.
type ProgressRecord struct {
	Cycle          int    `json:"cycle"`
	TotalCycles    int    `json:"total_cycles"`
	Errors         int    `json:"errors"`
	Timeouts       int    `json:"timeouts"`
	CycleStatus    string `json:"cycle_status,omitempty"`
	CycleCompleted *bool  `json:"cycle_completed,omitempty"`
}

type SummaryRecord struct {
	InstanceID      string `json:"instance_id"`
	TotalCommands   int    `json:"total_commands"`
	Errors          int    `json:"errors"`
	Timeouts        int    `json:"timeouts"`
	CyclesCompleted int    `json:"cycles_completed"`
	Stopped         bool   `json:"stopped"`
}

func NewProgressRecord(key domain.ProgressKey, r domain.CycleResult) ProgressRecord {
	rec := ProgressRecord{
		Cycle:       r.Cycle,
		TotalCycles: r.TotalCycles,
		Errors:      r.Counters.Errors,
		Timeouts:    r.Counters.Timeouts,
	}
	switch key {
	case domain.ProgressKeyCompleted:
		accepted := r.Accepted
		rec.CycleCompleted = &accepted
	default:
		rec.CycleStatus = "Failed"
		if r.Accepted {
			rec.CycleStatus = "Success"
		}
	}
	return rec
}

func NewSummaryRecord(s domain.Summary) SummaryRecord {
	return SummaryRecord{
		InstanceID:      s.InstanceID,
		TotalCommands:   s.Commands,
		Errors:          s.Errors,
		Timeouts:        s.Timeouts,
		CyclesCompleted: s.CyclesCompleted,
		Stopped:         s.Stopped,
	}
}

// JSONFormatter writes one progress record per line. Log messages are
// mirrored to the same stream, matching what supervising tools expect.
type JSONFormatter struct {
	config *domain.RunConfig
	out    io.Writer
	mu     sync.Mutex
}

func NewJSONFormatter(cfg *domain.RunConfig) *JSONFormatter {
	return NewJSONFormatterTo(cfg, os.Stdout)
}

func NewJSONFormatterTo(cfg *domain.RunConfig, out io.Writer) *JSONFormatter {
	return &JSONFormatter{config: cfg, out: out}
}

func (f *JSONFormatter) GetOutputWriters() (stdout, stderr io.Writer) {
	return f.out, os.Stderr
}

func (f *JSONFormatter) OnStart(cycle int) {
	// Only finished cycles are reported
}

func (f *JSONFormatter) OnComplete(result domain.CycleResult) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line, err := json.Marshal(NewProgressRecord(f.config.Profile.ProgressKey, result))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding progress: %v\n", err)
		return
	}
	line = append(line, '\n')
	if _, err := f.out.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing progress: %v\n", err)
	}
}

func (f *JSONFormatter) OnFinish(summary domain.Summary) {
	// The summary goes to the log sink
}
