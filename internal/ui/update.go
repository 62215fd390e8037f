package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aldervik/lumen/internal/ota"
)

// SnapshotMsg carries one update-progress observation into the TUI.
type SnapshotMsg ota.Snapshot

// UpdateDoneMsg signals that monitoring finished.
type UpdateDoneMsg struct{}

// UpdateErrMsg signals that the update could not be started or monitored.
type UpdateErrMsg struct{ Err error }

// UpdateModel is the `lumen update` progress screen: a bar fed by monitor
// snapshots, finishing when the monitor does.
type UpdateModel struct {
	deviceID string
	bar      progress.Model

	percent   int
	status    string
	rebooting bool
	done      bool
	err       error
	cancelled bool
	width     int
}

// NewUpdateModel creates the progress screen for one device.
func NewUpdateModel(deviceID string) UpdateModel {
	return UpdateModel{
		deviceID: deviceID,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
		status: "starting",
		width:  GetTerminalWidth(),
	}
}

// Cancelled reports whether the user quit before the update finished. The
// rollout keeps running on the device; only the screen went away.
func (m UpdateModel) Cancelled() bool {
	return m.cancelled
}

// Err returns the terminal error, if any.
func (m UpdateModel) Err() error {
	return m.err
}

// Init implements tea.Model.
func (m UpdateModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m UpdateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		barWidth := msg.Width - 20
		if barWidth < 20 {
			barWidth = 20
		}
		if barWidth > 50 {
			barWidth = 50
		}
		m.bar = progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth),
		)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done {
				m.cancelled = true
			}
			return m, tea.Quit
		}
		return m, nil

	case SnapshotMsg:
		if msg.InProgress {
			m.percent = msg.Percent
			if msg.Status != "" {
				m.status = msg.Status
			}
		} else {
			// The device finished downloading; the monitor is waiting out
			// the reboot before refreshing firmware metadata.
			m.rebooting = true
			m.status = "rebooting"
		}
		return m, nil

	case UpdateDoneMsg:
		m.done = true
		return m, tea.Quit

	case UpdateErrMsg:
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m UpdateModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Updating " + m.deviceID))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(ErrorMessageStyle.Render("  " + FailureMarker + " " + m.err.Error()))
	case m.done:
		b.WriteString(SuccessTitleStyle.Render("  " + SuccessMarker + " update complete"))
	case m.rebooting:
		b.WriteString(UpdatingStyle.Render("  waiting for the light to reboot..."))
	default:
		barView := m.bar.ViewAs(float64(m.percent) / 100)
		b.WriteString(fmt.Sprintf("  %s %3d%%", barView, m.percent))
		if m.status != "" {
			b.WriteString("  " + NoteStyle.Render(m.status))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(HintStyle.Render("  q to leave (the update keeps running on the light)"))
	b.WriteString("\n")
	return b.String()
}
