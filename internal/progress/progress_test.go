package progress

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jessegalley/readbench/internal/stats"
)

func TestBarCountsIterations(t *testing.T) {
	var out bytes.Buffer
	b := New(&out, "reading")

	b.Start(4)
	for i := 0; i < 3; i++ {
		b.Iteration(i, stats.IterationResult{File: i + 1, Bytes: 4096, Fallback: i == 1})
	}
	b.Finish(stats.RunMetrics{Iterations: 3}, nil)

	if got := b.Current(); got != 3 {
		t.Fatalf("Current() = %d, want 3", got)
	}
	if out.Len() == 0 {
		t.Fatal("bar wrote nothing")
	}
}

func TestBarWithoutStart(t *testing.T) {
	b := New(&bytes.Buffer{}, "reading")
	b.Iteration(0, stats.IterationResult{})
	b.Finish(stats.RunMetrics{}, errors.New("failed early"))
	if b.Current() != 0 {
		t.Fatal("unstarted bar should not count")
	}
}
