/*
 *
 * jesse galley <jesse@jessegalley.net>
 */

// Package config holds the parameters of a single benchmark run.
// A Config is built once from the command line, validated, and then
// treated as immutable by every other package.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// default values applied by NewConfig
const (
	DefaultFiles      = 10
	DefaultFileSize   = 1024
	DefaultIterations = 100
	DefaultDir        = "./readbench_test"
	DefaultChunkSize  = 1 << 20
	DefaultAlignment  = 4096
	DefaultWorkers    = 16
	DefaultDropCache  = "/proc/sys/vm/drop_caches"
	DefaultFormat     = "table"
)

// Config holds all configuration parameters for a readbench run
type Config struct {
	Files      int    // number of test files (N)
	FileSize   int64  // requested size of each test file in bytes (K)
	Iterations int    // number of file reads to perform (ITER)
	Dir        string // directory holding the test files

	Reuse     bool // trust files left by a previous run instead of provisioning
	DropCache bool // drop the page cache before the read phase
	SkipRead  bool // only open and close each file, no data transfer
	SkipWrite bool // create the files but leave them empty
	Parallel  bool // read each file as concurrent positioned chunk reads

	ChunkSize  int64 // bytes per read call
	Alignment  int   // direct io alignment unit (0 asks for auto detection)
	Workers    int   // ceiling on concurrent chunk reads within one file
	Direct     bool  // request o_direct when opening files
	RandomFill bool  // fill files from the entropy source instead of the alphabet

	RateLimit int64  // read throttle in bytes per second (0 disables)
	Seed      uint64 // seed for a reproducible run, only used when Seeded
	Seeded    bool   // whether Seed was supplied

	DropCachePath string // kernel interface written by the cache drop
	Format        string // output format (table, json, or flat)
	Quiet         bool   // suppress the progress bar
	HistoryDB     string // bolt database recording finished runs ("" disables)
	MetricsAddr   string // listen address for the prometheus endpoint ("" disables)
}

// NewConfig creates a new Config instance with sensible default values
func NewConfig() *Config {
	return &Config{
		Files:         DefaultFiles,
		FileSize:      DefaultFileSize,
		Iterations:    DefaultIterations,
		Dir:           DefaultDir,
		ChunkSize:     DefaultChunkSize,
		Alignment:     DefaultAlignment,
		Workers:       DefaultWorkers,
		Direct:        true,
		DropCachePath: DefaultDropCache,
		Format:        DefaultFormat,
	}
}

// EffectiveFileSize is the number of bytes written to and read from each
// file. When direct io is requested, K is rounded up to the alignment unit.
func (c *Config) EffectiveFileSize() int64 {
	if !c.Direct {
		return c.FileSize
	}
	return roundUp(c.FileSize, int64(c.Alignment))
}

// EffectiveChunkSize is the per call transfer size, rounded up to the
// alignment unit under direct io
func (c *Config) EffectiveChunkSize() int64 {
	if !c.Direct {
		return c.ChunkSize
	}
	return roundUp(c.ChunkSize, int64(c.Alignment))
}

// Validate checks all parameters for validity. It expects Alignment to
// have been resolved already.
func (c *Config) Validate() error {
	if err := c.ValidateBasic(); err != nil {
		return err
	}

	if c.Alignment <= 0 {
		return fmt.Errorf("alignment must be a positive power of two, got %d", c.Alignment)
	}

	if c.Parallel {
		// empty files cannot satisfy positioned reads of the configured length
		if c.SkipWrite && !c.SkipRead && c.EffectiveFileSize() > 0 {
			return fmt.Errorf("parallel reads need file content; skip-write is only allowed together with skip-read")
		}

		size, chunk := c.EffectiveFileSize(), c.EffectiveChunkSize()
		if size > chunk && size%chunk != 0 {
			return fmt.Errorf("parallel reads need the file size (%d) to be a multiple of the chunk size (%d)", size, chunk)
		}
	}

	return nil
}

// ValidateBasic checks every parameter that does not depend on the
// resolved alignment. An Alignment of 0 (auto detect) passes.
func (c *Config) ValidateBasic() error {
	if c.Files < 1 {
		return fmt.Errorf("file count must be at least 1, got %d", c.Files)
	}

	if c.FileSize < 0 {
		return fmt.Errorf("file size must not be negative, got %d", c.FileSize)
	}

	if c.Iterations < 1 {
		return fmt.Errorf("iteration count must be at least 1, got %d", c.Iterations)
	}

	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("test directory must not be empty")
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}

	if c.Alignment < 0 || c.Alignment&(c.Alignment-1) != 0 {
		return fmt.Errorf("alignment must be a positive power of two, got %d", c.Alignment)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimit)
	}

	return nil
}

// ExpectedReadSize is the byte count one iteration is expected to transfer
func (c *Config) ExpectedReadSize() int64 {
	if c.SkipRead {
		return 0
	}
	return c.EffectiveFileSize()
}

// ParseBool accepts the boolean spellings used by positional arguments:
// 0, 1, true and false
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q, expected 0, 1, true or false", s)
	}
}

// ApplyArgs fills the config from positional arguments in the order
// N K ITER DIR [REUSE [DROP [SKIPREAD [SKIPWRITE [CHUNK [PARALLEL]]]]]].
// Missing trailing arguments keep their current values.
func (c *Config) ApplyArgs(args []string) error {
	if len(args) > 10 {
		return fmt.Errorf("too many arguments: got %d, at most 10 accepted", len(args))
	}

	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid file count %q: %w", args[0], err)
		}
		c.Files = v
	}

	if len(args) > 1 {
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file size %q: %w", args[1], err)
		}
		c.FileSize = v
	}

	if len(args) > 2 {
		v, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid iteration count %q: %w", args[2], err)
		}
		c.Iterations = v
	}

	if len(args) > 3 {
		c.Dir = args[3]
	}

	flags := []struct {
		pos  int
		name string
		dst  *bool
	}{
		{4, "reuse", &c.Reuse},
		{5, "drop cache", &c.DropCache},
		{6, "skip read", &c.SkipRead},
		{7, "skip write", &c.SkipWrite},
	}
	for _, f := range flags {
		if f.pos >= len(args) {
			return nil
		}
		v, err := ParseBool(args[f.pos])
		if err != nil {
			return fmt.Errorf("invalid %s flag: %w", f.name, err)
		}
		*f.dst = v
	}

	if len(args) > 8 {
		v, err := strconv.ParseInt(args[8], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chunk size %q: %w", args[8], err)
		}
		c.ChunkSize = v
	}

	if len(args) > 9 {
		v, err := ParseBool(args[9])
		if err != nil {
			return fmt.Errorf("invalid parallel flag: %w", err)
		}
		c.Parallel = v
	}

	return nil
}

func roundUp(v, unit int64) int64 {
	if unit <= 1 || v%unit == 0 {
		return v
	}
	return (v/unit + 1) * unit
}
