package ui

import "civharvest/pkg/harvest"

// Reporter follows a harvest and summarizes it at the end. ProgressDisplay
// and tui.TUI implement it.
type Reporter interface {
	harvest.Observer
	Complete(report *harvest.Report, location string)
}
