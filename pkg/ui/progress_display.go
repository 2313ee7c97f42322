package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"civharvest/pkg/harvest"
	"civharvest/pkg/records"
)

// ProgressDisplay redraws a single status line as a harvest proceeds. In
// verbose mode every record gets its own line instead.
type ProgressDisplay struct {
	mu           sync.Mutex
	w            io.Writer
	collectionID int64
	listed       int
	recorded     int
	skipped      int
	last         string
	startTime    time.Time
	verbose      bool
	now          func() time.Time
}

// NewProgressDisplay creates a display writing to w.
func NewProgressDisplay(w io.Writer, collectionID int64, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		w:            w,
		collectionID: collectionID,
		startTime:    time.Now(),
		verbose:      verbose,
		now:          time.Now,
	}
}

// Listed records how many items pagination produced.
func (p *ProgressDisplay) Listed(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listed = n
	fmt.Fprintf(p.w, "%s %d images listed in collection %d\n", Magenta("→"), n, p.collectionID)
}

// Recorded counts a finished record.
func (p *ProgressDisplay) Recorded(rec *records.MergedRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.recorded++
	p.last = fmt.Sprintf("%d", rec.ImageID)
	if p.verbose {
		fmt.Fprintf(p.w, "%s %d • %s • %s\n",
			Green("✓"),
			rec.ImageID,
			Dim(rec.Model),
			Dim(Truncate(rec.Prompt, 50)),
		)
		return
	}
	p.printProgress()
}

// Skipped counts an item that produced no record.
func (p *ProgressDisplay) Skipped(imageID int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped++
	if p.verbose {
		fmt.Fprintf(p.w, "%s %d skipped: %v\n", Red("✗"), imageID, err)
		return
	}
	p.printProgress()
}

func (p *ProgressDisplay) done() int {
	return p.recorded + p.skipped
}

// Line is the current status line without carriage control.
func (p *ProgressDisplay) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line()
}

func (p *ProgressDisplay) line() string {
	elapsed := p.now().Sub(p.startTime)
	line := fmt.Sprintf("%s [%s] %d/%d • %.1f/min • %s",
		Cyan(fmt.Sprintf("#%d", p.collectionID)),
		Bar(p.done(), p.listed, 20),
		p.done(),
		p.listed,
		Rate(p.done(), elapsed),
		ETA(p.done(), p.listed, elapsed),
	)
	if p.last != "" {
		line += " • " + p.last
	}
	if p.skipped > 0 {
		line += " • " + Red(fmt.Sprintf("%d skipped", p.skipped))
	}
	return line
}

func (p *ProgressDisplay) printProgress() {
	fmt.Fprintf(p.w, "\r%s\r%s", strings.Repeat(" ", 100), p.line())
}

// Complete prints the run summary.
func (p *ProgressDisplay) Complete(report *harvest.Report, location string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose && p.done() > 0 {
		fmt.Fprintln(p.w)
	}
	if report == nil {
		return
	}

	fmt.Fprintf(p.w, "\n%s Harvested %d records from collection %d\n",
		Green("✓"),
		len(report.Records),
		report.CollectionID,
	)
	fmt.Fprintf(p.w, "  %s %d listed in %s (%.1f records/min)\n",
		Dim("•"),
		report.Listed,
		FormatDuration(report.Duration()),
		Rate(len(report.Records), report.Duration()),
	)
	if n := len(report.Skipped); n > 0 {
		fmt.Fprintf(p.w, "  %s %d images skipped\n", Dim("•"), n)
	}
	if report.AlreadyStored > 0 {
		fmt.Fprintf(p.w, "  %s %d images already in the output\n", Dim("•"), report.AlreadyStored)
	}
	if report.TagFailures > 0 {
		fmt.Fprintf(p.w, "  %s %d tag lookups failed\n", Dim("•"), report.TagFailures)
	}
	if report.Pagination != nil && !report.Complete() {
		fmt.Fprintf(p.w, "  %s pagination stopped: %s\n", Dim("•"), report.Pagination.Status)
	}
	if location != "" {
		fmt.Fprintf(p.w, "  %s saved to %s\n", Dim("•"), location)
	}
	fmt.Fprintf(p.w, "  %s run %s\n", Dim("•"), report.RunID)
}
