package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
	"github.com/msaeedsaeedi/serialsoak/internal/store"
)

type reply struct {
	line string
	err  error
}

// scriptedChannel answers each ReadLine with the next scripted reply and
// with silence once the script runs out.
type scriptedChannel struct {
	mu       sync.Mutex
	replies  []reply
	writes   []string
	writeErr error
	flushErr error
	onWrite  func(n int)

	inputResets  int
	outputResets int
	flushes      int
	closes       int
}

func newScriptedChannel(lines ...string) *scriptedChannel {
	ch := &scriptedChannel{}
	for _, l := range lines {
		ch.replies = append(ch.replies, reply{line: l})
	}
	return ch
}

func (c *scriptedChannel) Write(data []byte) error {
	c.mu.Lock()
	if c.writeErr != nil {
		c.mu.Unlock()
		return &domain.WriteError{Command: string(data), Err: c.writeErr}
	}
	c.writes = append(c.writes, string(data))
	n := len(c.writes)
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

func (c *scriptedChannel) ReadLine(total, poll time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.replies) == 0 {
		return nil, nil
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.line), nil
}

func (c *scriptedChannel) ResetInputBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputResets++
	return nil
}

func (c *scriptedChannel) ResetOutputBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputResets++
	return nil
}

func (c *scriptedChannel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return c.flushErr
}

func (c *scriptedChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *scriptedChannel) opener() Opener {
	return func(port string, baud int) (Channel, error) {
		return c, nil
	}
}

type recordingHandler struct {
	mu        sync.Mutex
	starts    []int
	completes []domain.CycleResult
	finishes  []domain.Summary
}

func (h *recordingHandler) OnStart(cycle int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts = append(h.starts, cycle)
}

func (h *recordingHandler) OnComplete(result domain.CycleResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completes = append(h.completes, result)
}

func (h *recordingHandler) OnFinish(summary domain.Summary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finishes = append(h.finishes, summary)
}

func (h *recordingHandler) GetOutputWriters() (stdout, stderr io.Writer) {
	return io.Discard, io.Discard
}

type fakeHistory struct {
	mu        sync.Mutex
	created   []store.RunRecord
	cycles    map[string][]domain.CycleResult
	statuses  map[string]string
	createErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		cycles:   make(map[string][]domain.CycleResult),
		statuses: make(map[string]string),
	}
}

func (s *fakeHistory) CreateRun(ctx context.Context, rec store.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, rec)
	s.statuses[rec.ID] = rec.Status
	return nil
}

func (s *fakeHistory) AddCycle(ctx context.Context, runID string, r domain.CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles[runID] = append(s.cycles[runID], r)
	return nil
}

func (s *fakeHistory) FinishRun(ctx context.Context, runID, status string, sum domain.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[runID] = status
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func nopLogFactory(cfg *domain.RunConfig, live io.Writer) (zerolog.Logger, io.Closer, error) {
	return zerolog.Nop(), nopCloser{}, nil
}

// instant strips every wait from a profile so tests run at full speed.
func instant(p domain.Profile) domain.Profile {
	p.Read = domain.ReadStrategy{}
	p.OpenSettle = 0
	return p
}

func testConfig(p domain.Profile, cycles int, commands ...string) *domain.RunConfig {
	return &domain.RunConfig{
		Port:       "COM9",
		BaudRate:   115200,
		Cycles:     cycles,
		Commands:   commands,
		Profile:    instant(p),
		InstanceID: p.Name + "_test",
		Format:     domain.FormatJSON,
		Verbosity:  domain.VerbosityNormal,
	}
}
