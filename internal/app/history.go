package app

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
	"github.com/msaeedsaeedi/serialsoak/internal/store"
)

// HistoryStore persists runs so past soak tests can be reviewed.
type HistoryStore interface {
	CreateRun(ctx context.Context, rec store.RunRecord) error
	AddCycle(ctx context.Context, runID string, r domain.CycleResult) error
	FinishRun(ctx context.Context, runID, status string, s domain.Summary) error
}

type historyHandler struct {
	ctx    context.Context
	store  HistoryStore
	runID  string
	logger zerolog.Logger
}

func newHistoryHandler(ctx context.Context, s HistoryStore, cfg *domain.RunConfig, logger zerolog.Logger) (*historyHandler, error) {
	h := &historyHandler{
		// History writes must outlive an interrupted run.
		ctx:    context.WithoutCancel(ctx),
		store:  s,
		runID:  uuid.NewString(),
		logger: logger,
	}

	err := s.CreateRun(h.ctx, store.RunRecord{
		ID:         h.runID,
		InstanceID: cfg.InstanceID,
		Project:    cfg.Project,
		Profile:    cfg.Profile.Name,
		Port:       cfg.Port,
		BaudRate:   cfg.BaudRate,
		Cycles:     cfg.Cycles,
		Delay:      cfg.Delay,
		Commands:   cfg.Commands,
		Status:     store.StatusRunning,
		StartedAt:  time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *historyHandler) OnStart(int) {}

func (h *historyHandler) OnComplete(result domain.CycleResult) {
	if err := h.store.AddCycle(h.ctx, h.runID, result); err != nil {
		h.logger.Warn().Msgf("Could not record cycle %d: %v", result.Cycle, err)
	}
}

func (h *historyHandler) OnFinish(summary domain.Summary) {
	status := store.StatusCompleted
	if summary.Stopped {
		status = store.StatusStopped
	}
	h.finish(status, summary)
}

func (h *historyHandler) GetOutputWriters() (stdout, stderr io.Writer) {
	return nil, nil
}

func (h *historyHandler) fail(err error) {
	h.logger.Debug().Msgf("Recording failed run %s: %v", h.runID, err)
	h.finish(store.StatusFailed, domain.Summary{})
}

func (h *historyHandler) finish(status string, summary domain.Summary) {
	if err := h.store.FinishRun(h.ctx, h.runID, status, summary); err != nil {
		h.logger.Warn().Msgf("Could not record run result: %v", err)
	}
}
