package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

func TestRunControllerQBAAllSucceed(t *testing.T) {
	cfg := testConfig(domain.QBA, 2, "p:1:b1:1:200:2:200:", "p:1:b2:1:200:2:200:", "p:1:b3:1:200:2:200:")
	ch := newScriptedChannel("0", "0", "0", "0", "0", "0")
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	summary, err := ctrl.Run(context.Background(), ch.opener())

	require.NoError(t, err)
	assert.Len(t, ch.writes, 6)
	assert.Equal(t, "p:1:b1:1:200:2:200:\n", ch.writes[0])

	assert.Equal(t, []int{1, 2}, h.starts)
	require.Len(t, h.completes, 2)
	for i, r := range h.completes {
		assert.Equal(t, i+1, r.Cycle)
		assert.Equal(t, 2, r.TotalCycles)
		assert.True(t, r.Accepted)
		assert.Zero(t, r.Counters.Errors)
		assert.Zero(t, r.Counters.Timeouts)
	}

	assert.Equal(t, 6, summary.Commands)
	assert.Equal(t, 2, summary.CyclesCompleted)
	assert.False(t, summary.Stopped)
	require.Len(t, h.finishes, 1)
	assert.Equal(t, summary, h.finishes[0])
	assert.Equal(t, 1, ch.closes)
}

func TestRunControllerQSwipeFailedCycleDoesNotEndRun(t *testing.T) {
	cfg := testConfig(domain.QSwipe, 2, "e:s:c:e:4:", "i:", "e:s:c:e:3:")
	// Cycle 1 fails on its second command; cycle 2 starts over from the first.
	ch := newScriptedChannel("0", "50", "0", "0", "0")
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	summary, err := ctrl.Run(context.Background(), ch.opener())

	require.NoError(t, err)
	assert.Equal(t, []string{
		"e:s:c:e:4:\n", "i:\n",
		"e:s:c:e:4:\n", "i:\n", "e:s:c:e:3:\n",
	}, ch.writes)

	require.Len(t, h.completes, 2)
	assert.False(t, h.completes[0].Accepted)
	assert.Equal(t, 1, h.completes[0].Counters.Timeouts)
	assert.True(t, h.completes[1].Accepted)

	assert.Equal(t, 5, summary.Commands)
	assert.Equal(t, 1, summary.Timeouts)
	assert.Equal(t, 1, summary.CyclesCompleted, "completed cycles derive from commands attempted")
	assert.Equal(t, 2, ctrl.Counters().Cycles)
}

func TestRunControllerOpenSettleResetsBuffers(t *testing.T) {
	cfg := testConfig(domain.QSwipe, 1, "i:")
	cfg.Profile.OpenSettle = 1
	ch := newScriptedChannel("0")

	ctrl := NewRunController(cfg, zerolog.Nop(), &recordingHandler{})
	_, err := ctrl.Run(context.Background(), ch.opener())

	require.NoError(t, err)
	assert.Equal(t, 1, ch.outputResets)
	// One reset after opening plus one before the command.
	assert.Equal(t, 2, ch.inputResets)
}

func TestRunControllerConnectionError(t *testing.T) {
	cfg := testConfig(domain.QBA, 3, "b1")
	h := &recordingHandler{}
	connErr := &domain.ConnectionError{Port: cfg.Port, Baud: cfg.BaudRate, Err: errors.New("no such device")}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	summary, err := ctrl.Run(context.Background(), func(string, int) (Channel, error) {
		return nil, connErr
	})

	var target *domain.ConnectionError
	require.ErrorAs(t, err, &target)
	assert.Zero(t, summary.Commands)
	assert.Empty(t, h.starts)
	assert.Empty(t, h.finishes, "nothing to clean up when the port never opened")
}

func TestRunControllerStopMidCycle(t *testing.T) {
	cfg := testConfig(domain.QBA, 5, "b1", "b2", "b3")
	ch := newScriptedChannel("0", "0", "0")
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	ch.onWrite = func(n int) {
		if n == 2 {
			ctrl.Stop()
		}
	}

	summary, err := ctrl.Run(context.Background(), ch.opener())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ch.writes, 2, "the command in flight finishes, no further command is sent")
	assert.Empty(t, h.completes, "an interrupted cycle emits no progress")
	require.Len(t, h.finishes, 1)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 2, summary.Commands)
	assert.Zero(t, summary.CyclesCompleted)
	assert.Equal(t, 1, ch.closes)
}

func TestRunControllerStopBeforeRun(t *testing.T) {
	cfg := testConfig(domain.QBA, 5, "b1")
	ch := newScriptedChannel()
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	ctrl.Stop()
	ctrl.Stop()

	summary, err := ctrl.Run(context.Background(), ch.opener())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ch.writes)
	assert.True(t, summary.Stopped)
	assert.Len(t, h.finishes, 1)
}

func TestRunControllerParentCancel(t *testing.T) {
	cfg := testConfig(domain.QSwipe, 3, "e:s:c:e:4:", "i:")
	ctx, cancel := context.WithCancel(context.Background())
	ch := newScriptedChannel("0", "0", "0", "0", "0", "0")
	ch.onWrite = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	summary, err := ctrl.Run(ctx, ch.opener())

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, h.completes, 1)
	assert.True(t, summary.Stopped)
	assert.Equal(t, 1, summary.CyclesCompleted)
}

func TestRunControllerZeroCycles(t *testing.T) {
	cfg := testConfig(domain.QBA, 0, "b1", "b2")
	ch := newScriptedChannel()
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	summary, err := ctrl.Run(context.Background(), ch.opener())

	require.NoError(t, err)
	assert.Empty(t, ch.writes)
	assert.Equal(t, domain.Summary{InstanceID: cfg.InstanceID, Duration: summary.Duration}, summary)
	assert.Len(t, h.finishes, 1)
	assert.Equal(t, 1, ch.closes)
}

func TestRunControllerCleanupRunsOnce(t *testing.T) {
	cfg := testConfig(domain.QBA, 1, "b1")
	ch := newScriptedChannel("0")
	h := &recordingHandler{}

	ctrl := NewRunController(cfg, zerolog.Nop(), h)
	first, err := ctrl.Run(context.Background(), ch.opener())
	require.NoError(t, err)

	second := ctrl.cleanup(true)

	assert.Equal(t, first, second)
	assert.Len(t, h.finishes, 1)
	assert.Equal(t, 1, ch.closes)
}

func TestRunCountInvariant(t *testing.T) {
	// Without interruption every command of every cycle is attempted exactly once.
	cfg := testConfig(domain.QBA, 4, "b1", "b2", "b3")
	replies := []string{"0", "13", "", "7", "x", "0", "0", "0", "13", "0", "0", "0"}
	ch := newScriptedChannel(replies...)

	ctrl := NewRunController(cfg, zerolog.Nop(), &recordingHandler{})
	summary, err := ctrl.Run(context.Background(), ch.opener())

	require.NoError(t, err)
	assert.Equal(t, 12, summary.Commands)
	assert.Equal(t, 4, summary.CyclesCompleted)
	assert.Equal(t, 2, summary.Timeouts)
	assert.Equal(t, 3, summary.Errors)
}
