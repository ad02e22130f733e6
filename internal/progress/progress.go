// Package progress renders a live progress bar while a run iterates
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"github.com/minio/pkg/console"

	"github.com/jessegalley/readbench/internal/stats"
)

const barTemplate = `{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{speed . "%s files/s" }}`

// Bar reports iterations on a terminal progress bar
type Bar struct {
	mu  sync.Mutex
	out io.Writer
	bar *pb.ProgressBar

	caption  string
	fallback bool
}

// New creates a Bar drawing to out
func New(out io.Writer, caption string) *Bar {
	// progress bar specific theme customization
	console.SetColor("Bar", color.New(color.FgGreen, color.Bold))
	return &Bar{out: out, caption: caption}
}

// Start draws an empty bar sized for iterations
func (b *Bar) Start(iterations int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bar := pb.New(iterations)
	bar.SetWriter(b.out)
	bar.SetRefreshRate(time.Millisecond * 125)
	bar.SetTemplateString(barTemplate)
	bar.Set("prefix", color.New(color.FgCyan).Sprint(b.caption))
	bar.Start()
	b.bar = bar
}

// Iteration advances the bar by one file
func (b *Bar) Iteration(_ int, r stats.IterationResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}

	// flag the caption once the first read falls back to buffered io
	if r.Fallback && !b.fallback {
		b.fallback = true
		b.bar.Set("prefix", color.New(color.FgYellow).Sprint(b.caption+" (buffered)"))
	}
	b.bar.Increment()
}

// Finish stops redrawing the bar
func (b *Bar) Finish(_ stats.RunMetrics, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}
	if err != nil {
		b.bar.Set("prefix", color.New(color.FgRed).Sprint(b.caption+" (failed)"))
	}
	b.bar.Finish()
}

// Current returns the number of iterations shown so far
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return 0
	}
	return b.bar.Current()
}
