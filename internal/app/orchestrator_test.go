package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
	"github.com/msaeedsaeedi/serialsoak/internal/store"
	"github.com/msaeedsaeedi/serialsoak/internal/ui"
)

func newGolden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestExecuteQBAProgress(t *testing.T) {
	cfg := testConfig(domain.QBA, 2, "p:1:b1:1:200:2:200:", "p:1:b2:1:200:2:200:", "p:1:b3:1:200:2:200:")
	cfg.Format = domain.FormatRaw
	ch := newScriptedChannel("0", "0", "0", "0", "0", "0")
	var progress bytes.Buffer

	o := NewOrchestrator(
		WithOpener(ch.opener()),
		WithLogFactory(nopLogFactory),
		WithHandlers(ui.NewJSONFormatterTo(cfg, &progress)),
	)
	require.NoError(t, o.Execute(context.Background(), cfg))

	newGolden(t).Assert(t, "qba_progress", progress.Bytes())
}

func TestExecuteQSwipeProgress(t *testing.T) {
	cfg := testConfig(domain.QSwipe, 2, "e:s:c:e:4:", "i:")
	cfg.Format = domain.FormatRaw
	ch := newScriptedChannel("0", "0", "0", "")
	var progress bytes.Buffer

	o := NewOrchestrator(
		WithOpener(ch.opener()),
		WithLogFactory(nopLogFactory),
		WithHandlers(ui.NewJSONFormatterTo(cfg, &progress)),
	)
	require.NoError(t, o.Execute(context.Background(), cfg))

	newGolden(t).Assert(t, "qswipe_progress", progress.Bytes())
}

func TestExecuteRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(domain.QBA, 1)
	opened := false

	o := NewOrchestrator(
		WithOpener(func(string, int) (Channel, error) {
			opened = true
			return newScriptedChannel(), nil
		}),
		WithLogFactory(nopLogFactory),
	)
	err := o.Execute(context.Background(), cfg)

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "commands", vErr.Field)
	assert.False(t, opened)
}

func TestExecuteLogFactoryFailure(t *testing.T) {
	cfg := testConfig(domain.QBA, 1, "b1")
	cfg.Format = domain.FormatRaw
	boom := errors.New("read-only file system")

	o := NewOrchestrator(
		WithOpener(newScriptedChannel("0").opener()),
		WithLogFactory(func(*domain.RunConfig, io.Writer) (zerolog.Logger, io.Closer, error) {
			return zerolog.Nop(), nil, boom
		}),
	)
	assert.ErrorIs(t, o.Execute(context.Background(), cfg), boom)
}

func TestExecuteRecordsHistory(t *testing.T) {
	cfg := testConfig(domain.QBA, 2, "b1", "b2")
	cfg.Format = domain.FormatRaw
	hist := newFakeHistory()

	o := NewOrchestrator(
		WithOpener(newScriptedChannel("0", "0", "0", "13").opener()),
		WithLogFactory(nopLogFactory),
		WithHistory(hist),
	)
	require.NoError(t, o.Execute(context.Background(), cfg))

	require.Len(t, hist.created, 1)
	rec := hist.created[0]
	assert.Equal(t, cfg.InstanceID, rec.InstanceID)
	assert.Equal(t, "qba", rec.Profile)
	assert.Equal(t, []string{"b1", "b2"}, rec.Commands)

	cycles := hist.cycles[rec.ID]
	require.Len(t, cycles, 2)
	assert.True(t, cycles[0].Accepted)
	assert.False(t, cycles[1].Accepted)
	assert.Equal(t, store.StatusCompleted, hist.statuses[rec.ID])
}

func TestExecuteHistoryMarksFailedConnection(t *testing.T) {
	cfg := testConfig(domain.QBA, 2, "b1")
	cfg.Format = domain.FormatRaw
	hist := newFakeHistory()

	o := NewOrchestrator(
		WithOpener(func(port string, baud int) (Channel, error) {
			return nil, &domain.ConnectionError{Port: port, Baud: baud, Err: errors.New("busy")}
		}),
		WithLogFactory(nopLogFactory),
		WithHistory(hist),
	)
	err := o.Execute(context.Background(), cfg)

	var connErr *domain.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Len(t, hist.created, 1)
	assert.Equal(t, store.StatusFailed, hist.statuses[hist.created[0].ID])
}

func TestExecuteHistoryUnavailable(t *testing.T) {
	cfg := testConfig(domain.QBA, 1, "b1")
	cfg.Format = domain.FormatRaw
	hist := newFakeHistory()
	hist.createErr = errors.New("database is locked")
	h := &recordingHandler{}

	o := NewOrchestrator(
		WithOpener(newScriptedChannel("0").opener()),
		WithLogFactory(nopLogFactory),
		WithHistory(hist),
		WithHandlers(h),
	)
	require.NoError(t, o.Execute(context.Background(), cfg))
	assert.Len(t, h.completes, 1, "the run goes on without history")
}

func TestOrchestratorStop(t *testing.T) {
	cfg := testConfig(domain.QBA, 10, "b1")
	cfg.Format = domain.FormatRaw
	ch := newScriptedChannel("0", "0", "0", "0", "0", "0", "0", "0", "0", "0")
	h := &recordingHandler{}

	o := NewOrchestrator(
		WithOpener(ch.opener()),
		WithLogFactory(nopLogFactory),
		WithHandlers(h),
	)
	ch.onWrite = func(n int) {
		if n == 3 {
			o.Stop()
		}
	}

	err := o.Execute(context.Background(), cfg)

	assert.ErrorIs(t, err, context.Canceled)
	// The stop lands on the last command of cycle 3, which still completes.
	assert.Len(t, h.completes, 3)
	require.Len(t, h.finishes, 1)
	assert.True(t, h.finishes[0].Stopped)
}

func TestOrchestratorStopWithoutRun(t *testing.T) {
	assert.NotPanics(t, func() {
		NewOrchestrator().Stop()
	})
}
