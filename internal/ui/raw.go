package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

type RawFormatter struct {
	config *domain.RunConfig
	out    io.Writer
}

func NewRawFormatter(cfg *domain.RunConfig) *RawFormatter {
	return &RawFormatter{config: cfg, out: os.Stderr}
}

func (f *RawFormatter) GetOutputWriters() (stdout, stderr io.Writer) {
	return os.Stdout, os.Stderr
}

func (f *RawFormatter) OnStart(cycle int) {
	fmt.Fprintf(f.out, "[ Cycle %d/%d ]\n", cycle, f.config.Cycles)
}

func (f *RawFormatter) OnComplete(result domain.CycleResult) {
	fmt.Fprintf(f.out, "[ Cycle %d/%d completed in %v", result.Cycle, result.TotalCycles,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if result.Accepted {
		fmt.Fprintf(f.out, " - SUCCESS")
	} else {
		fmt.Fprintf(f.out, " - FAILED")
	}
	fmt.Fprintf(f.out, " (errors %d, timeouts %d) ]\n", result.Counters.Errors, result.Counters.Timeouts)
}

func (f *RawFormatter) OnFinish(summary domain.Summary) {
	state := "finished"
	if summary.Stopped {
		state = "stopped"
	}
	fmt.Fprintf(f.out, "[ Run %s: %d commands, %d errors, %d timeouts, %d cycles ]\n",
		state, summary.Commands, summary.Errors, summary.Timeouts, summary.CyclesCompleted)
}
