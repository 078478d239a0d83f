package scanner

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/mattn/go-isatty"
)

type outcome int

const (
	outcomeAnalyzed outcome = iota
	outcomeSkipped
	outcomeFailed
)

// reporter renders scan progress. Calls may come from any worker.
type reporter interface {
	start(total int)
	file(rel string, o outcome, err error)
	finish(r *Result)
}

// newReporter picks the renderer for style. Bar falls back to Dots when w
// is not a terminal.
func newReporter(style ProgressStyle, w io.Writer) reporter {
	if w == nil {
		return silentReporter{}
	}
	if style == Bar && !isTerminal(w) {
		style = Dots
	}
	switch style {
	case Dots:
		return &dotsReporter{w: w}
	case Bar:
		return &barReporter{w: w, bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))}
	case Verbose:
		return &verboseReporter{w: w}
	default:
		return silentReporter{}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type silentReporter struct{}

func (silentReporter) start(int)                   {}
func (silentReporter) file(string, outcome, error) {}
func (silentReporter) finish(*Result)              {}

type dotsReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func (d *dotsReporter) start(int) {}

func (d *dotsReporter) file(_ string, o outcome, _ error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mark := "."
	switch o {
	case outcomeSkipped:
		mark = "s"
	case outcomeFailed:
		mark = "E"
	}
	fmt.Fprint(d.w, mark)
}

func (d *dotsReporter) finish(r *Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, "\n%s\n", r.Summary())
}

type barReporter struct {
	mu    sync.Mutex
	w     io.Writer
	bar   progress.Model
	total int
	done  int
}

func (b *barReporter) start(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
	b.render()
}

func (b *barReporter) file(string, outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	b.render()
}

func (b *barReporter) render() {
	pct := 1.0
	if b.total > 0 {
		pct = float64(b.done) / float64(b.total)
	}
	fmt.Fprintf(b.w, "\r%s %d/%d", b.bar.ViewAs(pct), b.done, b.total)
}

func (b *barReporter) finish(r *Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.w, "\n%s\n", r.Summary())
}

type verboseReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func (v *verboseReporter) start(total int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.w, "scanning %d files\n", total)
}

func (v *verboseReporter) file(rel string, o outcome, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch o {
	case outcomeSkipped:
		fmt.Fprintf(v.w, "skipped  %s\n", rel)
	case outcomeFailed:
		fmt.Fprintf(v.w, "failed   %s: %v\n", rel, err)
	default:
		fmt.Fprintf(v.w, "analyzed %s\n", rel)
	}
}

func (v *verboseReporter) finish(r *Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintln(v.w, r.Summary())
}
