package tui

import (
	"fmt"

	"civharvest/pkg/harvest"
	"civharvest/pkg/records"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI runs the harvest dashboard. It implements harvest.Observer, so it can
// be handed straight to a Scrape call running on another goroutine.
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for collectionID. Extra options are passed to
// tea.NewProgram; without any the dashboard takes over the alternate
// screen.
func NewTUI(collectionID int64, opts ...tea.ProgramOption) *TUI {
	model := NewModel(collectionID)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the dashboard until Complete is called or the user quits.
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) Listed(n int) {
	t.Send(ListedMsg{Count: n})
}

func (t *TUI) Recorded(rec *records.MergedRecord) {
	t.Send(RecordMsg{ImageID: rec.ImageID, Model: rec.Model, BaseModel: rec.BaseModel})
}

func (t *TUI) Skipped(imageID int64, err error) {
	t.Send(SkipMsg{ImageID: imageID, Err: err})
}

// Complete closes the dashboard. The caller prints the final summary once
// Start has returned.
func (t *TUI) Complete(report *harvest.Report, location string) {
	var err error
	if report != nil && !report.Complete() && report.Pagination != nil && report.Pagination.Err != nil {
		err = report.Pagination.Err
	}
	t.Send(DoneMsg{Location: location, Err: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log(LevelInfo, format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log(LevelWarn, format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log(LevelError, format, args...)
}
