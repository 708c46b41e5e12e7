// Package tui is the spool-top terminal dashboard. It polls a running
// sidecar for totals and engine state and renders them as a bar chart and
// table.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/spool/internal/engine"
	"github.com/tinytelemetry/spool/internal/model"
)

// Fetcher is the read side of a sidecar. socketrpc.Client satisfies it.
type Fetcher interface {
	Totals(opts model.QueryOpts) ([]model.MetricTotal, error)
	EngineStats() (engine.Stats, error)
}

// TickMsg triggers a poll.
type TickMsg time.Time

type dataLoadedMsg struct {
	totals []model.MetricTotal
	stats  engine.Stats
	err    error
	at     time.Time
}

// kindTabs is the filter cycle; the empty entry shows every kind.
var kindTabs = []string{"", "count", "amount", "status", "interval"}

// Dashboard is the Bubble Tea model.
type Dashboard struct {
	fetcher        Fetcher
	source         string
	updateInterval time.Duration
	keys           KeyMap

	width  int
	height int

	tab      int
	cursor   int
	paused   bool
	inFlight bool

	totals    []model.MetricTotal
	stats     engine.Stats
	lastErr   error
	updatedAt time.Time
}

// NewDashboard builds a dashboard polling f every updateInterval.
func NewDashboard(f Fetcher, source string, updateInterval time.Duration) *Dashboard {
	if updateInterval <= 0 {
		updateInterval = model.DefaultUpdateInterval
	}
	return &Dashboard{
		fetcher:        f,
		source:         source,
		updateInterval: updateInterval,
		keys:           DefaultKeyMap(),
	}
}

func (m *Dashboard) Init() tea.Cmd {
	m.inFlight = true
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

func (m *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(m.updateInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchCmd runs both queries off the update loop.
func (m *Dashboard) fetchCmd() tea.Cmd {
	f := m.fetcher
	opts := model.QueryOpts{Kind: kindTabs[m.tab]}
	return func() tea.Msg {
		msg := dataLoadedMsg{at: time.Now()}
		msg.totals, msg.err = f.Totals(opts)
		if msg.err != nil {
			return msg
		}
		msg.stats, msg.err = f.EngineStats()
		return msg
	}
}

func (m *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		if m.paused || m.inFlight {
			return m, m.tickCmd()
		}
		m.inFlight = true
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case dataLoadedMsg:
		m.inFlight = false
		m.lastErr = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.totals = msg.totals
		m.stats = msg.stats
		m.updatedAt = msg.at
		if m.cursor >= len(m.totals) {
			m.cursor = max(len(m.totals)-1, 0)
		}
		return m, nil
	}
	return m, nil
}

func (m *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.ForceQuit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.totals)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.NextKind):
		m.tab = (m.tab + 1) % len(kindTabs)
		return m, m.refresh()
	case key.Matches(msg, m.keys.PrevKind):
		m.tab = (m.tab + len(kindTabs) - 1) % len(kindTabs)
		return m, m.refresh()
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	}
	return m, nil
}

// refresh fetches immediately unless a poll is already running.
func (m *Dashboard) refresh() tea.Cmd {
	m.cursor = 0
	if m.inFlight {
		return nil
	}
	m.inFlight = true
	return m.fetchCmd()
}
