package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/resourcedriver/metrics"
)

// SnapshotFunc fetches the current counters to render, typically a poll
// of a resource driver server's GET /metrics endpoint.
type SnapshotFunc func() (metrics.Snapshot, error)

type jobsTickMsg time.Time

type jobsSnapshotMsg struct {
	snapshot metrics.Snapshot
	err      error
}

// JobsModel is the Bubble Tea model backing `driverctl jobs`.
type JobsModel struct {
	fetch    SnapshotFunc
	interval time.Duration
	data     metrics.Snapshot
	lastErr  error
	quitting bool
}

// NewJobsModel creates a jobs dashboard model polling fetch every interval.
func NewJobsModel(fetch SnapshotFunc, interval time.Duration) JobsModel {
	return JobsModel{fetch: fetch, interval: interval}
}

// Init implements tea.Model.
func (m JobsModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), tickCmd(m.interval))
}

func (m JobsModel) pollCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch()
		return jobsSnapshotMsg{snapshot: snap, err: err}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return jobsTickMsg(t) })
}

// Update implements tea.Model.
func (m JobsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case jobsTickMsg:
		return m, tea.Batch(m.pollCmd(), tickCmd(m.interval))

	case jobsSnapshotMsg:
		m.data = msg.snapshot
		m.lastErr = msg.err
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m JobsModel) View() string {
	if m.quitting {
		return ""
	}

	var b, row1, row2, row3 string
	b = TitleStyle.Render("Resource Driver Jobs")
	b += "\n\n"

	if m.lastErr != nil {
		b += ErrorStyle.Render(fmt.Sprintf("snapshot fetch failed: %v", m.lastErr))
		b += "\n\n"
	}

	row1 = lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Admitted", m.data.RequestsAdmitted, highlightColor),
		renderStatBox("Enqueued", m.data.RequestsEnqueued, warningColor),
		renderStatBox("Rejected", m.data.RequestsRejected, errorColor),
	)

	row2 = lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Sync OK", m.data.SyncDispatchAccepted, successColor),
		renderStatBox("Sync Failed", m.data.SyncDispatchFailed, errorColor),
		renderStatBox("Publish OK", m.data.PublishSuccess, successColor),
		renderStatBox("Publish Failed", m.data.PublishFailure, errorColor),
	)

	row3 = lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Polls Requeued", m.data.MonitorPollsRequeued, warningColor),
		renderStatBox("Polls Dropped", m.data.MonitorPollsDropped, mutedColor),
		renderStatBox("Polls Published", m.data.MonitorPollsPublished, successColor),
	)

	b += row1 + "\n\n" + row2 + "\n\n" + row3 + "\n"

	if m.data.LifecycleName != "" || m.data.BusBackend != "" {
		b += "\n" + LabelStyle.Render("lifecycle:") + ValueStyle.Render(m.data.LifecycleName)
		b += "  " + LabelStyle.Render("bus:") + ValueStyle.Render(m.data.BusBackend)
		b += "\n"
	}

	b += HelpStyle.Render("Press q or Ctrl+C to quit")
	return b
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunJobsTUI starts the live jobs dashboard, polling fetch once a second
// until the user quits.
func RunJobsTUI(fetch SnapshotFunc) error {
	model := NewJobsModel(fetch, time.Second)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
