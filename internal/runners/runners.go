// package runners drives a complete benchmark run: provisioning, the
// optional cache drop and the timed read loop
package runners

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/jessegalley/readbench/internal/config"
	"github.com/jessegalley/readbench/internal/entropy"
	"github.com/jessegalley/readbench/internal/layout"
	"github.com/jessegalley/readbench/internal/pattern"
	"github.com/jessegalley/readbench/internal/reader"
	"github.com/jessegalley/readbench/internal/stats"
)

// State is the phase a Driver is in
type State int

const (
	StateConfigured State = iota
	StateProvisioned
	StateCacheDropped
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateProvisioned:
		return "provisioned"
	case StateCacheDropped:
		return "cache-dropped"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reporter is told about the progress and outcome of a run
type Reporter interface {
	// Start is called once when the read loop begins
	Start(iterations int)

	// Iteration is called after every successful file read
	Iteration(i int, r stats.IterationResult)

	// Finish is called exactly once with the final metrics, or with the
	// partial metrics and the error that ended the run
	Finish(m stats.RunMetrics, err error)
}

// Reporters fans events out to several reporters in order
type Reporters []Reporter

func (rs Reporters) Start(iterations int) {
	for _, r := range rs {
		r.Start(iterations)
	}
}

func (rs Reporters) Iteration(i int, res stats.IterationResult) {
	for _, r := range rs {
		r.Iteration(i, res)
	}
}

func (rs Reporters) Finish(m stats.RunMetrics, err error) {
	for _, r := range rs {
		r.Finish(m, err)
	}
}

// CacheDropper evicts cached file data before the read phase
type CacheDropper interface {
	DropAll() error
}

// Driver runs one benchmark described by a validated Config
type Driver struct {
	cfg      *config.Config
	src      entropy.Source
	reporter Reporter
	cache    CacheDropper
	state    State
}

// Option customizes a Driver
type Option func(*Driver)

// WithEntropy sets the source used for random fill and the access pattern
func WithEntropy(src entropy.Source) Option {
	return func(d *Driver) { d.src = src }
}

// WithReporter sets the collaborator notified about progress
func WithReporter(r Reporter) Option {
	return func(d *Driver) { d.reporter = r }
}

// WithCacheDropper sets how the page cache is dropped
func WithCacheDropper(c CacheDropper) Option {
	return func(d *Driver) { d.cache = c }
}

// NewDriver creates a Driver in the configured state
func NewDriver(cfg *config.Config, opts ...Option) *Driver {
	d := &Driver{
		cfg:      cfg,
		src:      entropy.NewSystem(),
		reporter: Reporters(nil),
		state:    StateConfigured,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the phase the driver is currently in
func (d *Driver) State() State {
	return d.state
}

func (d *Driver) transition(s State) {
	glog.V(1).Infof("run state %s -> %s", d.state, s)
	d.state = s
}

// FileSet returns the files the run reads
func (d *Driver) FileSet() layout.FileSet {
	return layout.FileSet{Dir: d.cfg.Dir, Count: d.cfg.Files}
}

// Strategy names how files are read
func (d *Driver) Strategy() string {
	switch {
	case d.cfg.SkipRead:
		return "skip-read"
	case d.cfg.Parallel:
		return "parallel"
	default:
		return "sequential"
	}
}

// Run executes the benchmark. Any error is fatal: the driver moves to the
// failed state and returns the metrics gathered so far with the error.
func (d *Driver) Run(ctx context.Context) (m stats.RunMetrics, err error) {
	if d.state != StateConfigured {
		return m, fmt.Errorf("driver cannot run from state %s", d.state)
	}

	defer func() {
		if err != nil {
			d.transition(StateFailed)
		}
		d.reporter.Finish(m, err)
	}()

	set := d.FileSet()

	if err := d.provision(set, &m); err != nil {
		return m, err
	}

	pat, err := pattern.Generate(set.Count, d.src)
	if err != nil {
		return m, fmt.Errorf("failed to generate access pattern: %w", err)
	}

	if d.cfg.DropCache {
		if d.cache == nil {
			return m, fmt.Errorf("cache drop requested but no cache controller configured")
		}
		if err := d.cache.DropAll(); err != nil {
			return m, fmt.Errorf("failed to drop page cache: %w", err)
		}
		d.transition(StateCacheDropped)
	}

	rd, err := reader.New(reader.Options{
		ExpectedSize: d.cfg.EffectiveFileSize(),
		ChunkSize:    d.cfg.EffectiveChunkSize(),
		Alignment:    d.cfg.Alignment,
		Workers:      d.cfg.Workers,
		Direct:       d.cfg.Direct,
		Parallel:     d.cfg.Parallel,
		SkipRead:     d.cfg.SkipRead,
	})
	if err != nil {
		return m, err
	}
	defer rd.Close()

	limiter := d.limiter()

	d.transition(StateRunning)
	d.reporter.Start(d.cfg.Iterations)

	start := time.Now()
	defer func() { m.Elapsed = time.Since(start) }()

	for i := 0; i < d.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return m, fmt.Errorf("run interrupted after %d iterations: %w", i, err)
		}

		idx := pat.At(i)
		iterStart := time.Now()
		res, err := rd.ReadFile(ctx, set.Path(idx))
		res.File = idx
		res.Latency = time.Since(iterStart)
		if err != nil {
			return m, fmt.Errorf("iteration %d (file %d): %w", i, idx, err)
		}

		m.Add(res)
		d.reporter.Iteration(i, res)

		// throttle outside the measured latency, inside the elapsed time
		if limiter != nil && res.Bytes > 0 {
			if err := limiter.WaitN(ctx, int(res.Bytes)); err != nil {
				return m, fmt.Errorf("rate limiter: %w", err)
			}
		}
	}

	d.transition(StateCompleted)
	return m, nil
}

// provision creates the file set, or trusts it as is in reuse mode
func (d *Driver) provision(set layout.FileSet, m *stats.RunMetrics) error {
	if d.cfg.Reuse {
		glog.V(1).Infof("reusing existing files in %s", set.Dir)
		d.transition(StateProvisioned)
		return nil
	}

	policy := layout.FillPattern
	switch {
	case d.cfg.SkipWrite:
		policy = layout.FillSkip
	case d.cfg.RandomFill:
		policy = layout.FillRandom
	}

	start := time.Now()
	err := layout.NewProvisioner(d.src).Provision(set, d.cfg.EffectiveFileSize(), policy)
	m.ProvisionTime = time.Since(start)
	if err != nil {
		return err
	}

	d.transition(StateProvisioned)
	return nil
}

// limiter returns a byte rate limiter, or nil when throttling is off.
// The burst covers a whole file so a single read never exceeds it.
func (d *Driver) limiter() *rate.Limiter {
	if d.cfg.RateLimit <= 0 {
		return nil
	}
	burst := max(d.cfg.RateLimit, d.cfg.EffectiveFileSize())
	return rate.NewLimiter(rate.Limit(d.cfg.RateLimit), int(burst))
}
