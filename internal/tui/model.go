// Package tui renders live operation progress in the terminal: one row per
// active entity with a progress bar, speed and ETA columns. The model is
// fed relay events through the Forward adapter and quits on its own when
// the awaited operation delivers its terminal event.
package tui

import (
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hangar-launcher/hangar/internal/progress"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/util"
)

const (
	keyWidth    = 24
	statusWidth = 13
	speedWidth  = 11
	etaWidth    = 6

	defaultBarWidth = 30
	minBarWidth     = 10
	maxBarWidth     = 48
)

// Config controls a progress view.
type Config struct {
	// Title is rendered above the table when non-empty.
	Title string

	// Await names the entity key whose terminal event ends the program.
	// When empty the program ends once every known row is terminal.
	Await string

	// Keys pre-populates rows so entities show up before their first
	// event arrives.
	Keys []string
}

// row is the tracked state of one entity.
type row struct {
	key      string
	status   relay.Status
	snap     progress.Snapshot
	hasSnap  bool
	terminal bool
	outcome  relay.Outcome
}

// Model is the bubbletea model for the progress view.
type Model struct {
	title  string
	await  string
	events <-chan relay.Event

	order []string
	rows  map[string]*row

	bar      progressbar.Model
	spin     spinner.Model
	quitting bool
}

// NewModel creates a progress view reading from events; nil is allowed
// when the caller injects eventMsg values itself.
func NewModel(cfg Config, events <-chan relay.Event) Model {
	m := Model{
		title:  cfg.Title,
		await:  cfg.Await,
		events: events,
		rows:   make(map[string]*row),
		bar:    progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(defaultBarWidth)),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
	}
	for _, key := range cfg.Keys {
		m.ensureRow(key)
	}
	return m
}

// Init satisfies tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, listen(m.events))
}

// Update satisfies tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = barWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case eventMsg:
		next, cmd := m.applyEvent(msg.ev)
		if nm, ok := next.(Model); ok && nm.quitting {
			return next, cmd
		}
		return next, tea.Batch(cmd, listen(m.events))
	}
	return m, nil
}

func (m Model) applyEvent(ev relay.Event) (tea.Model, tea.Cmd) {
	r := m.ensureRow(ev.Key())

	switch e := ev.(type) {
	case relay.StatusEvent:
		r.status = e.Status
	case relay.ProgressEvent:
		r.status = e.Status
		r.snap = e.Snapshot
		r.hasSnap = true
	case relay.ResultEvent:
		r.status = e.Status
		r.terminal = true
		r.outcome = e.Outcome
		if m.await == ev.Key() || (m.await == "" && m.allTerminal()) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) ensureRow(key string) *row {
	if r, ok := m.rows[key]; ok {
		return r
	}
	r := &row{key: key, status: relay.StatusIdle}
	m.rows[key] = r
	m.order = append(m.order, key)
	return r
}

func (m Model) allTerminal() bool {
	if len(m.rows) == 0 {
		return false
	}
	for _, r := range m.rows {
		if !r.terminal {
			return false
		}
	}
	return true
}

// AwaitedOutcome returns the terminal outcome of the awaited entity, when
// it has arrived.
func (m Model) AwaitedOutcome() (relay.Outcome, bool) {
	r, ok := m.rows[m.await]
	if !ok || !r.terminal {
		return relay.Outcome{}, false
	}
	return r.outcome, true
}

// View satisfies tea.Model.
func (m Model) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(titleStyle.Render(m.title))
		b.WriteString("\n\n")
	}

	for _, key := range m.order {
		b.WriteString(m.renderRow(m.rows[key]))
		b.WriteByte('\n')
	}

	if m.quitting {
		for _, key := range m.order {
			r := m.rows[key]
			if r.terminal && r.outcome.Kind == relay.OutcomeFailed && r.outcome.Err != nil {
				b.WriteByte('\n')
				b.WriteString(errorStyle.Render(r.key + ": " + r.outcome.Err.Error()))
				if r.outcome.LogPath != "" {
					b.WriteString(mutedStyle.Render("  (log: " + r.outcome.LogPath + ")"))
				}
				b.WriteByte('\n')
			}
		}
	} else if len(m.order) > 0 {
		b.WriteByte('\n')
		b.WriteString(mutedStyle.Render("q to quit"))
		b.WriteByte('\n')
	}

	return b.String()
}

func (m Model) renderRow(r *row) string {
	var marker string
	switch {
	case !r.terminal:
		marker = m.spin.View()
	case r.outcome.Kind == relay.OutcomeSuccess:
		marker = successMark
	case r.outcome.Kind == relay.OutcomeAborted:
		marker = abortMark
	default:
		marker = failMark
	}

	status := r.status.String()
	if !r.terminal && r.hasSnap && r.snap.Verifying {
		status = "verifying"
	}

	speed, eta := "", ""
	if !r.terminal && r.hasSnap {
		if r.snap.SpeedBytesPerSec > 0 {
			speed = util.FormatBytes(int64(r.snap.SpeedBytesPerSec)) + "/s"
		}
		eta = util.FormatETA(r.snap.ETASeconds)
	}

	cols := []string{
		marker,
		keyStyle.Render(pad(util.TruncateString(r.key, keyWidth), keyWidth)),
		statusStyle(r).Render(pad(status, statusWidth)),
		m.bar.ViewAs(barPercent(r)),
		pad(speed, speedWidth),
		pad(eta, etaWidth),
	}
	return strings.Join(cols, "  ")
}

func barPercent(r *row) float64 {
	if r.terminal && r.outcome.Kind == relay.OutcomeSuccess {
		return 1
	}
	pct := r.snap.Percentage / 100
	if pct < 0 {
		return 0
	}
	if pct > 1 {
		return 1
	}
	return pct
}

func barWidth(termWidth int) int {
	// Everything except the bar has a fixed width.
	fixed := 1 + keyWidth + statusWidth + speedWidth + etaWidth + 5*2
	w := termWidth - fixed
	if w < minBarWidth {
		return minBarWidth
	}
	if w > maxBarWidth {
		return maxBarWidth
	}
	return w
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
