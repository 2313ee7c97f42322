package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ListedMsg reports the number of items pagination produced.
type ListedMsg struct {
	Count int
}

// RecordMsg reports a finished record.
type RecordMsg struct {
	ImageID   int64
	Model     string
	BaseModel string
}

// SkipMsg reports an item that produced no record.
type SkipMsg struct {
	ImageID int64
	Err     error
}

// LogMsg adds a log panel line.
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg ends the dashboard.
type DoneMsg struct {
	Location string
	Err      error
}

// TickMsg refreshes elapsed time and ETA.
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = progressWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.phase == PhaseDone {
			return m, nil
		}
		return m, tickCmd()

	case ListedMsg:
		m.listed = msg.Count
		m.phase = PhaseHarvesting
		m.addLog(LevelInfo, fmt.Sprintf("%d images listed", msg.Count))
		return m, nil

	case RecordMsg:
		m.recorded++
		m.addRecent(RecentRecord{ImageID: msg.ImageID, Model: msg.Model, BaseModel: msg.BaseModel})
		return m, nil

	case SkipMsg:
		m.skipped++
		m.addRecent(RecentRecord{ImageID: msg.ImageID, Skipped: true})
		if msg.Err != nil {
			m.addLog(LevelWarn, fmt.Sprintf("image %d skipped: %v", msg.ImageID, msg.Err))
		}
		return m, nil

	case LogMsg:
		m.addLog(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.phase = PhaseDone
		m.location = msg.Location
		m.err = msg.Err
		if msg.Err != nil {
			m.addLog(LevelError, msg.Err.Error())
		} else {
			m.addLog(LevelSuccess, fmt.Sprintf("%d records harvested", m.recorded))
		}
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

func progressWidth(termWidth int) int {
	w := (termWidth-4)/2 - 12
	if w < 10 {
		w = 10
	}
	return w
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
