/*
Copyright © 2025 jesse galley <jesse@jessegalley.net>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/jessegalley/readbench/internal/cache"
	"github.com/jessegalley/readbench/internal/config"
	"github.com/jessegalley/readbench/internal/entropy"
	"github.com/jessegalley/readbench/internal/history"
	"github.com/jessegalley/readbench/internal/metrics"
	"github.com/jessegalley/readbench/internal/output"
	"github.com/jessegalley/readbench/internal/progress"
	"github.com/jessegalley/readbench/internal/runners"
)

// runCfg collects flag values; positional arguments are applied on top
var runCfg = config.NewConfig()

// buffered disables direct io
var buffered bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [N [K [ITER [DIR [REUSE [DROP [SKIPREAD [SKIPWRITE [CHUNK [PARALLEL]]]]]]]]]]",
	Short: "Provision a file set and benchmark reading it.",
	Long: `Creates N files of K bytes in DIR and reads ITER of them in a shuffled order.

Positional arguments, all optional, in order:
  N          number of files                         (default 10)
  K          size of each file in bytes              (default 1024)
  ITER       number of file reads                    (default 100)
  DIR        directory holding the files             (default ./readbench_test)
  REUSE      reuse files from a previous run         (0/1, default 0)
  DROP       drop the page cache before reading      (0/1, default 0, needs root)
  SKIPREAD   only open and close files               (0/1, default 0)
  SKIPWRITE  create empty files                      (0/1, default 0)
  CHUNK      bytes per read call                     (default 1048576)
  PARALLEL   read chunks of a file concurrently      (0/1, default 0)

With direct io, K and CHUNK are rounded up to the alignment unit.`,
	Args: cobra.MaximumNArgs(10),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBenchmark(cmd, args); err != nil {
			exitOnError(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runCfg.RandomFill, "random-fill", false, "fill files with random bytes instead of a repeating alphabet")
	runCmd.Flags().IntVar(&runCfg.Alignment, "align", config.DefaultAlignment, "direct io alignment in bytes (0 detects it from the filesystem)")
	runCmd.Flags().IntVarP(&runCfg.Workers, "workers", "w", config.DefaultWorkers, "maximum concurrent chunk reads per file in parallel mode")
	runCmd.Flags().Int64Var(&runCfg.RateLimit, "rate-limit", 0, "throttle reads to this many bytes per second (0 disables)")
	runCmd.Flags().BoolVar(&buffered, "buffered", false, "do not request direct io")
	runCmd.Flags().Uint64Var(&runCfg.Seed, "seed", 0, "seed fill and access order for a reproducible run")
	runCmd.Flags().StringVar(&runCfg.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	runCmd.Flags().StringVar(&runCfg.DropCachePath, "drop-cache-path", config.DefaultDropCache, "kernel interface written to drop the page cache")
}

// runBenchmark resolves the configuration, runs the driver and reports
func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg := runCfg
	if err := cfg.ApplyArgs(args); err != nil {
		return err
	}
	cfg.Direct = !buffered
	cfg.Seeded = cmd.Flags().Changed("seed")
	cfg.Format = outFmt
	cfg.Quiet = quiet
	cfg.HistoryDB = historyDB

	format, err := output.ValidateFormat(cfg.Format)
	if err != nil {
		return err
	}

	// reject bad parameters before anything touches the filesystem
	if err := cfg.ValidateBasic(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	// reuse only reads, so the directory just has to exist; otherwise it
	// must be writable by the calling user and is created if possible
	if cfg.Reuse {
		if err := ensureDirectory(cfg.Dir); err != nil {
			return err
		}
	} else if err := ensureWritableDirectory(cfg.Dir); err != nil {
		return err
	}

	if cfg.Alignment == 0 {
		align, err := cache.ProbeAlignment(cfg.Dir, config.DefaultAlignment)
		if err != nil {
			return err
		}
		cfg.Alignment = align
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	if glog.V(2) {
		glog.Infof("resolved configuration:\n%s", spew.Sdump(cfg))
	}

	var src entropy.Source = entropy.NewSystem()
	if cfg.Seeded {
		src = entropy.NewSeeded(cfg.Seed)
	}

	var reporters runners.Reporters
	if !cfg.Quiet {
		reporters = append(reporters, progress.New(os.Stderr, "reading"))
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.New()
		srv, err := collector.Serve(cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		reporters = append(reporters, collector)
	}

	driver := runners.NewDriver(cfg,
		runners.WithEntropy(src),
		runners.WithReporter(reporters),
		runners.WithCacheDropper(cache.NewController(cfg.DropCachePath)),
	)

	// an interrupt ends the run between iterations
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	glog.V(1).Infof("starting %s read of %d files x %d bytes, %d iterations",
		driver.Strategy(), cfg.Files, cfg.EffectiveFileSize(), cfg.Iterations)

	m, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	if m.Fallbacks > 0 {
		glog.Warningf("%d of %d reads fell back to buffered io", m.Fallbacks, m.Iterations)
	}

	result := output.Result{
		Files:     cfg.Files,
		FileSize:  cfg.EffectiveFileSize(),
		ChunkSize: cfg.EffectiveChunkSize(),
		Strategy:  driver.Strategy(),
		Direct:    cfg.Direct,
		Metrics:   m,
	}

	out, err := output.FormatResult(result, format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	fmt.Print(out)

	if cfg.HistoryDB != "" {
		if err := recordRun(cfg, result); err != nil {
			// the measurement itself succeeded
			glog.Errorf("%v", err)
		}
	}

	return nil
}

// recordRun appends the finished run to the history database
func recordRun(cfg *config.Config, result output.Result) error {
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		dir = cfg.Dir
	}

	id, err := store.Save(historyRecord(dir, result))
	if err != nil {
		return err
	}

	glog.V(1).Infof("recorded run %d in %s", id, cfg.HistoryDB)
	return nil
}

func historyRecord(dir string, result output.Result) history.Record {
	m := result.Metrics
	return history.Record{
		Finished:   time.Now(),
		Dir:        dir,
		Files:      result.Files,
		FileSize:   result.FileSize,
		ChunkSize:  result.ChunkSize,
		Iterations: m.Iterations,
		Strategy:   result.Strategy,
		Direct:     result.Direct,
		BytesRead:  m.BytesRead,
		Elapsed:    m.Elapsed,
		AvgLatency: m.AvgLatency(),
		Throughput: m.ThroughputMiBps(),
		Fallbacks:  m.Fallbacks,
	}
}

// ensureDirectory checks that dirPath exists and is a directory,
// without creating or writing anything
func ensureDirectory(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		return fmt.Errorf("failed to check directory %s: %w", dirPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", dirPath)
	}
	return nil
}

// ensureWritableDirectory creates dirPath if needed and checks that the
// calling user can create files in it
func ensureWritableDirectory(dirPath string) error {
	if info, err := os.Stat(dirPath); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory", dirPath)
		}

		// try to create a temporary file to test writeability
		testFile := filepath.Join(dirPath, ".write_test")
		f, err := os.Create(testFile)
		if err != nil {
			return fmt.Errorf("directory %s exists but is not writable: %w", dirPath, err)
		}
		f.Close()
		os.Remove(testFile)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check directory %s: %w", dirPath, err)
	}

	// directory doesn't exist, try to create it
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}

	return nil
}
