package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
	"github.com/msaeedsaeedi/serialsoak/internal/infra"
	"github.com/msaeedsaeedi/serialsoak/internal/ui"
)

// LogFactory builds the run's logger. live receives the mirrored messages.
type LogFactory func(cfg *domain.RunConfig, live io.Writer) (zerolog.Logger, io.Closer, error)

type Orchestrator struct {
	validator *domain.ConfigValidator
	open      Opener
	newLogger LogFactory
	handlers  []ResultHandler
	history   HistoryStore

	mu         sync.Mutex
	controller *RunController
}

type Option func(*Orchestrator)

func WithOpener(open Opener) Option {
	return func(o *Orchestrator) {
		o.open = open
	}
}

func WithLogFactory(f LogFactory) Option {
	return func(o *Orchestrator) {
		o.newLogger = f
	}
}

// WithHandlers adds result handlers that run alongside the output formatter.
func WithHandlers(h ...ResultHandler) Option {
	return func(o *Orchestrator) {
		o.handlers = append(o.handlers, h...)
	}
}

func WithHistory(store HistoryStore) Option {
	return func(o *Orchestrator) {
		o.history = store
	}
}

func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		validator: domain.NewConfigValidator(),
		open:      openSerial,
		newLogger: openLogSink,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Execute(ctx context.Context, cfg *domain.RunConfig) error {
	if err := o.validator.Validate(cfg); err != nil {
		return err
	}

	handler := getFormatter(cfg)

	if cfg.Format == domain.FormatTUI {
		tuiHandler, ok := handler.(*ui.TUIFormatter)
		if !ok {
			return fmt.Errorf("tui formatter not available")
		}
		return o.executeTUI(ctx, cfg, tuiHandler)
	}

	return o.run(ctx, cfg, handler)
}

// Stop ends the current run, if any, as an interrupt would.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	ctrl := o.controller
	o.mu.Unlock()
	if ctrl != nil {
		ctrl.Stop()
	}
}

func (o *Orchestrator) run(ctx context.Context, cfg *domain.RunConfig, formatter ResultHandler) error {
	live, _ := formatter.GetOutputWriters()
	logger, closer, err := o.newLogger(cfg, live)
	if err != nil {
		return err
	}
	defer closer.Close()

	handlers := append([]ResultHandler{formatter}, o.handlers...)
	var history *historyHandler
	if o.history != nil {
		history, err = newHistoryHandler(ctx, o.history, cfg, logger)
		if err != nil {
			logger.Warn().Msgf("Run history disabled: %v", err)
		} else {
			handlers = append(handlers, history)
		}
	}

	ctrl := NewRunController(cfg, logger, multiHandler(handlers))
	o.mu.Lock()
	o.controller = ctrl
	o.mu.Unlock()

	_, err = ctrl.Run(ctx, o.open)

	var connErr *domain.ConnectionError
	if history != nil && errors.As(err, &connErr) {
		history.fail(err)
	}
	return err
}

func (o *Orchestrator) executeTUI(ctx context.Context, cfg *domain.RunConfig, tui *ui.TUIFormatter) error {
	ctxRun, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctxRun)

	// Start TUI; when it exits (quit or finish), cancel to stop the run
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx)
	})

	// The log mirror writes into the TUI, so it must exist first
	if err := tui.WaitReady(gctx); err != nil {
		return err
	}

	g.Go(func() error {
		if err := o.run(gctx, cfg, tui); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		return nil
	})

	return g.Wait()
}

func getFormatter(cfg *domain.RunConfig) ResultHandler {
	switch cfg.Format {
	case domain.FormatRaw:
		return ui.NewRawFormatter(cfg)
	case domain.FormatTUI:
		return ui.NewTUIFormatter(cfg)
	default:
		return ui.NewJSONFormatter(cfg)
	}
}

func openSerial(port string, baud int) (Channel, error) {
	ch, err := infra.OpenChannel(port, baud)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func openLogSink(cfg *domain.RunConfig, live io.Writer) (zerolog.Logger, io.Closer, error) {
	sink, err := infra.NewLogSink(cfg, live)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return sink.Logger, sink, nil
}
