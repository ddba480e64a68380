package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

var (
	// Colors
	colorActiveBlue = lipgloss.Color("39")
	colorDimGray    = lipgloss.Color("240")
	colorGreen      = lipgloss.Color("42")
	colorRed        = lipgloss.Color("196")
	colorYellow     = lipgloss.Color("220")
	colorWhite      = lipgloss.Color("255")
	colorLightGray  = lipgloss.Color("250")

	// Text Styles
	styleBoldWhite = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	styleDim       = lipgloss.NewStyle().Foreground(colorDimGray)
	styleActive    = lipgloss.NewStyle().Foreground(colorActiveBlue).Bold(true)
	styleSuccess   = lipgloss.NewStyle().Foreground(colorGreen)
	styleFailure   = lipgloss.NewStyle().Foreground(colorRed)
	stylePending   = lipgloss.NewStyle().Foreground(colorDimGray)
	styleRunning   = lipgloss.NewStyle().Foreground(colorYellow)

	// Footer Styles
	styleHelpKey  = lipgloss.NewStyle().Foreground(colorLightGray)
	styleHelpText = lipgloss.NewStyle().Foreground(colorDimGray)

	// Layout Styles
	styleSidebar = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
	styleMain    = lipgloss.NewStyle().PaddingLeft(4)
	styleFooter  = lipgloss.NewStyle().PaddingTop(1).PaddingLeft(1).PaddingBottom(1)
	styleScreen  = lipgloss.NewStyle().Margin(1, 2)
)

type TUIFormatter struct {
	model   *Model
	program *tea.Program
	cycle   int64
	ready   chan struct{}
	once    sync.Once
}

type startMsg struct{ cycle int }
type completeMsg struct{ result domain.CycleResult }
type finishMsg struct{ summary domain.Summary }
type tickMsg time.Time

type streamMsg struct {
	text  string
	isErr bool
	cycle int
}

type tuiWriter struct {
	isErr     bool
	formatter *TUIFormatter
}

type cycleState struct {
	id         int
	status     string // "pending", "running", "success", "failed"
	errors     int
	timeouts   int
	startedAt  time.Time
	finishedAt time.Time
}

type logLine struct {
	text  string
	isErr bool
}

type Model struct {
	cfg                 *domain.RunConfig
	completed           int
	summary             *domain.Summary
	quit                bool
	width               int
	height              int
	cycles              []cycleState
	selected            int
	cycleLogs           map[int][]logLine
	maxLinesPerCycle    int
	scrollOffset        int
	sidebarScrollOffset int
	autoScroll          bool
	lastTickTime        time.Time
	bar                 progress.Model
	mu                  sync.Mutex
}

func NewModel(cfg *domain.RunConfig) *Model {
	cycles := make([]cycleState, cfg.Cycles)
	for i := range cycles {
		cycles[i] = cycleState{id: i + 1, status: "pending"}
	}

	return &Model{
		cfg:              cfg,
		cycleLogs:        make(map[int][]logLine),
		maxLinesPerCycle: 10000,
		cycles:           cycles,
		autoScroll:       true,
		bar:              progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func NewTUIFormatter(cfg *domain.RunConfig) *TUIFormatter {
	return &TUIFormatter{model: NewModel(cfg), ready: make(chan struct{})}
}

func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case startMsg:
		m.mu.Lock()
		if c := m.cycle(msg.cycle); c != nil {
			c.status = "running"
			c.startedAt = time.Now()
		}
		if m.autoScroll {
			m.selected = max(0, msg.cycle-1)
		}
		m.mu.Unlock()

	case completeMsg:
		m.mu.Lock()
		m.completed++
		if c := m.cycle(msg.result.Cycle); c != nil {
			c.status = "failed"
			if msg.result.Accepted {
				c.status = "success"
			}
			c.errors = msg.result.Counters.Errors
			c.timeouts = msg.result.Counters.Timeouts
			c.finishedAt = msg.result.FinishedAt
		}
		m.mu.Unlock()

	case finishMsg:
		m.mu.Lock()
		summary := msg.summary
		m.summary = &summary
		for i := range m.cycles {
			if m.cycles[i].status == "running" {
				m.cycles[i].status = "failed"
				m.cycles[i].finishedAt = time.Now()
			}
		}
		m.mu.Unlock()
		return m, nil

	case streamMsg:
		m.appendLog(msg)
		return m, nil

	case tickMsg:
		m.mu.Lock()
		m.lastTickTime = time.Time(msg)
		active := m.summary == nil
		m.mu.Unlock()

		if active {
			return m, tick()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quit = true
			return m, tea.Quit
		case "up", "k":
			m.mu.Lock()
			if m.selected > 0 {
				m.selected--
				m.autoScroll = false
				if m.selected < m.sidebarScrollOffset {
					m.sidebarScrollOffset = m.selected
				}
			}
			m.mu.Unlock()
		case "down", "j":
			m.mu.Lock()
			if m.selected < len(m.cycles)-1 {
				m.selected++
				m.autoScroll = false
			}
			m.mu.Unlock()
		case "f":
			m.mu.Lock()
			m.autoScroll = true
			m.mu.Unlock()
		case "pgup":
			m.mu.Lock()
			m.scrollOffset = max(0, m.scrollOffset-10)
			m.autoScroll = false
			m.mu.Unlock()
		case "pgdown":
			m.mu.Lock()
			m.scrollOffset += 10
			m.mu.Unlock()
		}

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.mu.Unlock()
	}

	return m, nil
}

func (m *Model) cycle(id int) *cycleState {
	if id < 1 || id > len(m.cycles) {
		return nil
	}
	return &m.cycles[id-1]
}

func (m *Model) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.width == 0 {
		return "Initializing..."
	}

	availWidth := max(20, m.width-4)
	availHeight := max(10, m.height-2)
	sidebarW := max(30, availWidth/4)
	mainW := availWidth - sidebarW - 1
	footerHeight := 4
	contentH := max(10, availHeight-footerHeight)

	sidebar := m.renderSidebar(sidebarW, contentH)
	mainPanel := m.renderMainPanel(mainW, contentH)
	footer := m.renderFooter(availWidth)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, mainPanel)
	screen := lipgloss.JoinVertical(lipgloss.Left, body, footer)

	return styleScreen.Render(screen)
}

func (m *Model) renderSidebar(width, height int) string {
	var sb strings.Builder

	sb.WriteString(styleBoldWhite.Render("CYCLES"))
	sb.WriteString("\n\n")

	visibleLines := height - 4

	if m.selected >= m.sidebarScrollOffset+visibleLines {
		m.sidebarScrollOffset = m.selected - visibleLines + 1
	}

	startIdx := m.sidebarScrollOffset
	endIdx := min(len(m.cycles), startIdx+visibleLines)

	if startIdx > 0 {
		sb.WriteString(styleDim.Render("  ▲ more above"))
		sb.WriteString("\n")
	}

	for i := startIdx; i < endIdx; i++ {
		sb.WriteString(m.renderCycleLine(i))
		sb.WriteString("\n")
	}

	if endIdx < len(m.cycles) {
		sb.WriteString(styleDim.Render("  ▼ more below"))
	}

	return styleSidebar.Width(width).MaxWidth(width).Height(height).Render(sb.String())
}

func (m *Model) renderCycleLine(index int) string {
	c := m.cycles[index]
	icon, style := cycleStatusDisplay(c.status)

	timeStr := ""
	if !c.startedAt.IsZero() {
		timeStr = c.startedAt.Format("15:04:05")
	}

	rowLeft := fmt.Sprintf("Cycle #%03d %s", c.id, icon)

	var line string
	if index == m.selected {
		line = fmt.Sprintf("┃ %-16s %s", rowLeft, timeStr)
		return styleActive.Render(line)
	}
	line = fmt.Sprintf("  %-16s %s", rowLeft, timeStr)
	return style.Render(line)
}

func cycleStatusDisplay(status string) (string, lipgloss.Style) {
	switch status {
	case "success":
		return "✓", styleSuccess
	case "failed":
		return "✗", styleFailure
	case "running":
		return "...", styleRunning
	default:
		return "-", stylePending
	}
}

func (m *Model) renderMainPanel(width, height int) string {
	var main strings.Builder

	if m.selected >= len(m.cycles) {
		return styleMain.Width(width).Render(styleDim.Render("No cycles configured"))
	}

	c := m.cycles[m.selected]

	main.WriteString(styleBoldWhite.Render(fmt.Sprintf("CYCLE DETAILS: #%03d", c.id)))
	main.WriteString("\n\n")

	m.renderDeviceSection(&main)
	m.renderStatusSection(&main, c)
	m.renderDurationSection(&main, c)
	m.renderLogsSection(&main, c, height)

	return styleMain.Width(width).Height(height).Render(main.String())
}

func (m *Model) renderDeviceSection(w *strings.Builder) {
	w.WriteString(styleBoldWhite.Render("Device"))
	fmt.Fprintf(w, "\n  %s @ %d baud, profile %s, %d commands/cycle\n\n",
		m.cfg.Port, m.cfg.BaudRate, m.cfg.Profile.Name, len(m.cfg.Commands))
}

func (m *Model) renderStatusSection(w *strings.Builder, c cycleState) {
	w.WriteString(styleBoldWhite.Render("Status") + "\n")

	var statText string
	switch c.status {
	case "success":
		statText = styleSuccess.Render("Success")
	case "failed":
		statText = styleFailure.Render("Failed")
	case "running":
		statText = styleRunning.Render("Running...")
	default:
		statText = "Pending"
	}
	if c.status == "success" || c.status == "failed" {
		statText += styleDim.Render(fmt.Sprintf("  errors %d, timeouts %d (cumulative)", c.errors, c.timeouts))
	}

	w.WriteString("  " + statText + "\n\n")
}

func (m *Model) renderDurationSection(w *strings.Builder, c cycleState) {
	dur := time.Duration(0)
	switch {
	case !c.finishedAt.IsZero():
		dur = c.finishedAt.Sub(c.startedAt)
	case c.status == "running":
		if !m.lastTickTime.IsZero() {
			dur = m.lastTickTime.Sub(c.startedAt)
		} else {
			dur = time.Since(c.startedAt)
		}
	}

	w.WriteString(styleBoldWhite.Render("Duration") + "\n")
	if dur > 0 {
		w.WriteString(fmt.Sprintf("  %s\n\n", dur.Round(time.Millisecond)))
	} else {
		w.WriteString("  -\n\n")
	}
}

func (m *Model) renderLogsSection(w *strings.Builder, c cycleState, contentHeight int) {
	w.WriteString(styleBoldWhite.Render("EXCHANGES"))
	w.WriteString("\n")

	entries := m.cycleLogs[c.id]
	if c.id == 1 {
		// Connection messages arrive before the first cycle starts
		entries = append(append([]logLine{}, m.cycleLogs[0]...), entries...)
	}

	logAreaHeight := max(5, contentHeight-15)
	total := len(entries)

	if m.autoScroll && total > logAreaHeight {
		m.scrollOffset = total - logAreaHeight
	}

	start := max(0, min(m.scrollOffset, total-logAreaHeight))
	end := min(total, start+logAreaHeight)

	rendered := 0
	for i := start; i < end; i++ {
		w.WriteString(entries[i].text + "\n")
		rendered++
	}
	for rendered < logAreaHeight {
		w.WriteString("\n")
		rendered++
	}

	if end < total {
		w.WriteString(styleDim.Render("... (scroll down for more) ..."))
	} else {
		w.WriteString(" ")
	}
}

func (m *Model) renderFooter(width int) string {
	percent := 0.0
	if len(m.cycles) > 0 {
		percent = float64(m.completed) / float64(len(m.cycles))
	}
	m.bar.Width = max(10, width/3)

	stateStr := "Active"
	if m.summary != nil {
		stateStr = "Complete"
		if m.summary.Stopped {
			stateStr = "Stopped"
		}
	}
	leftSection := m.bar.ViewAs(percent) + " " +
		styleHelpText.Render(fmt.Sprintf("%d/%d %s", m.completed, len(m.cycles), stateStr))

	helpItems := []string{
		styleHelpKey.Render("↑/k") + styleHelpText.Render(" navigate"),
		styleHelpKey.Render("f") + styleHelpText.Render(" follow"),
		styleHelpKey.Render("pgup/pgdn") + styleHelpText.Render(" scroll"),
		styleHelpKey.Render("q") + styleHelpText.Render(" quit"),
	}
	rightSection := strings.Join(helpItems, "   ")

	spacerWidth := max(2, width-lipgloss.Width(leftSection)-lipgloss.Width(rightSection)-4)
	footerLine := leftSection + strings.Repeat(" ", spacerWidth) + rightSection

	if m.summary != nil {
		footerLine += "\n" + styleHelpText.Render(fmt.Sprintf("commands %d · errors %d · timeouts %d · cycles %d",
			m.summary.Commands, m.summary.Errors, m.summary.Timeouts, m.summary.CyclesCompleted))
	}

	return styleFooter.Width(width).Render(footerLine)
}

func (m *Model) appendLog(msg streamMsg) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timestamp := time.Now()
	for _, line := range strings.Split(strings.TrimRight(msg.text, "\n"), "\n") {
		if line == "" {
			continue
		}

		ts := styleDim.Render("[" + timestamp.Format("15:04:05") + "] ")
		styled := styleDim.Render(line)
		if msg.isErr {
			styled = styleFailure.Render(line)
		}

		logs := append(m.cycleLogs[msg.cycle], logLine{text: ts + styled, isErr: msg.isErr})
		if len(logs) > m.maxLinesPerCycle {
			logs = logs[len(logs)-m.maxLinesPerCycle:]
		}
		m.cycleLogs[msg.cycle] = logs
	}
}

func (f *TUIFormatter) Run(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if ctx != nil {
		opts = append(opts, tea.WithContext(ctx))
	}

	f.program = tea.NewProgram(f.model, opts...)
	f.once.Do(func() { close(f.ready) })

	_, err := f.program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func (f *TUIFormatter) WaitReady(ctx context.Context) error {
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *TUIFormatter) OnStart(cycle int) {
	atomic.StoreInt64(&f.cycle, int64(cycle))
	f.send(startMsg{cycle: cycle})
}

func (f *TUIFormatter) OnComplete(result domain.CycleResult) {
	f.send(completeMsg{result: result})
}

func (f *TUIFormatter) OnFinish(summary domain.Summary) {
	f.send(finishMsg{summary: summary})
}

func (f *TUIFormatter) send(msg tea.Msg) {
	if f.program != nil {
		f.program.Send(msg)
	}
}

// GetOutputWriters routes log lines into the panel of the cycle that is
// currently running.
func (f *TUIFormatter) GetOutputWriters() (stdout, stderr io.Writer) {
	return &tuiWriter{formatter: f}, &tuiWriter{isErr: true, formatter: f}
}

func (w *tuiWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		cycle := int(atomic.LoadInt64(&w.formatter.cycle))
		w.formatter.send(streamMsg{text: string(p), isErr: w.isErr, cycle: cycle})
	}
	return len(p), nil
}
