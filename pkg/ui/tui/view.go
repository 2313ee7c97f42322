package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const logo = `
╔════════════════════════════════════════╗
║  CIVHARVEST  ·  collection harvester   ║
╚════════════════════════════════════════╝`

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	width := (m.width - 4) / 2

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderRecentPanel(width),
	)
	right := m.renderLogsPanel(width)

	sections := []string{
		logoStyle.Width(m.width).Render(logo),
		lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help, q to stop"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(fmt.Sprintf(" COLLECTION %d ", m.collectionID))

	status := m.spinner.View() + " " + m.phase.String()
	if m.phase == PhaseDone {
		status = successStyle.Render("✓ done")
		if m.err != nil {
			status = errorStyle.Render("✗ aborted")
		}
	}

	stats := []string{
		status,
		"",
		m.progress.ViewAs(m.Percent()),
		stat("Listed:", fmt.Sprintf("%d", m.listed)),
		stat("Recorded:", fmt.Sprintf("%d", m.recorded)),
		stat("Elapsed:", formatDuration(m.now().Sub(m.startTime))),
		stat("ETA:", formatDuration(m.eta())),
	}
	if m.skipped > 0 {
		stats = append(stats, warningStyle.Render(fmt.Sprintf("⚠ %d skipped", m.skipped)))
	}
	if m.location != "" {
		stats = append(stats, stat("Output:", m.location))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), statsValueStyle.Render(value))
}

func (m *Model) renderRecentPanel(width int) string {
	title := titleStyle.Render(" RECENT ")

	if len(m.recent) == 0 {
		return panelStyle.Width(width).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, dimStyle.Render("Nothing yet")),
		)
	}

	var items []string
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		if r.Skipped {
			items = append(items, errorStyle.Render(fmt.Sprintf("✗ %d", r.ImageID)))
			continue
		}
		line := fmt.Sprintf("%s %d", successStyle.Render("✓"), r.ImageID)
		if r.Model != "" {
			line += " " + recordItemStyle.Render(truncate(r.Model, width-20))
		}
		if r.BaseModel != "" {
			line += " " + dimStyle.Render("("+r.BaseModel+")")
		}
		items = append(items, line)
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 12
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(levelColor(log.Level)).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = dimStyle.Render("No logs yet...")
	}

	height := m.height - 12
	if height < 5 {
		height = 5
	}

	return panelStyle.Width(width).Height(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Stop the harvest (records so far are kept)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Recent:
    ` + successStyle.Render("✓") + `        - Record written
    ` + errorStyle.Render("✗") + `        - Image skipped
`
	return panelStyle.Width(m.width).Render(help)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max < 4 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// formatDuration formats a duration as mm:ss or hh:mm:ss.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
