package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Log levels shown in the log panel.
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
)

const (
	maxLogMessages = 50
	maxRecent      = 6
)

// Phase is where the harvest currently is.
type Phase int

const (
	PhaseListing Phase = iota
	PhaseHarvesting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseListing:
		return "listing collection"
	case PhaseHarvesting:
		return "harvesting details"
	default:
		return "done"
	}
}

// RecentRecord is a line in the recent records panel.
type RecentRecord struct {
	ImageID   int64
	Model     string
	BaseModel string
	Skipped   bool
}

// LogMessage is a log panel entry.
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the harvest dashboard. All state changes arrive as messages, so
// it is only touched from the bubbletea goroutine.
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	collectionID int64
	phase        Phase
	listed       int
	recorded     int
	skipped      int
	recent       []RecentRecord
	location     string
	err          error

	startTime   time.Time
	now         func() time.Time
	width       int
	height      int
	showHelp    bool
	logMessages []LogMessage
}

// NewModel creates a dashboard for collectionID.
func NewModel(collectionID int64) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statsLabelStyle

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return &Model{
		spinner:      s,
		progress:     p,
		collectionID: collectionID,
		phase:        PhaseListing,
		startTime:    time.Now(),
		now:          time.Now,
	}
}

// Init starts the spinner and the refresh tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Done is the number of listed items already handled.
func (m *Model) Done() int {
	return m.recorded + m.skipped
}

// Percent is the share of listed items handled, 0 to 1.
func (m *Model) Percent() float64 {
	if m.listed == 0 {
		return 0
	}
	p := float64(m.Done()) / float64(m.listed)
	if p > 1 {
		p = 1
	}
	return p
}

// Counts returns listed, recorded and skipped totals.
func (m *Model) Counts() (listed, recorded, skipped int) {
	return m.listed, m.recorded, m.skipped
}

// Phase returns the current phase.
func (m *Model) Phase() Phase {
	return m.phase
}

func (m *Model) eta() time.Duration {
	done := m.Done()
	if done == 0 || m.listed <= done {
		return 0
	}
	per := m.now().Sub(m.startTime) / time.Duration(done)
	return per * time.Duration(m.listed-done)
}

func (m *Model) addRecent(r RecentRecord) {
	m.recent = append(m.recent, r)
	if len(m.recent) > maxRecent {
		m.recent = m.recent[len(m.recent)-maxRecent:]
	}
}

func (m *Model) addLog(level, message string) {
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
	})
	if len(m.logMessages) > maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-maxLogMessages:]
	}
}
