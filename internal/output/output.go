// Package output renders the summary of a finished run
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jessegalley/readbench/internal/stats"
)

// OutputFormat represents the supported output format types
type OutputFormat string

// supported output format constants
const (
	// table format outputs results in a human-readable table
	TableFormat OutputFormat = "table"

	// json format outputs results as a json object
	JSONFormat OutputFormat = "json"

	// flat format outputs results as space-separated values
	FlatFormat OutputFormat = "flat"
)

// Result pairs run metrics with the parameters that produced them
type Result struct {
	Files     int    // number of test files
	FileSize  int64  // effective bytes per file
	ChunkSize int64  // effective bytes per read call
	Strategy  string // sequential, parallel or skip-read
	Direct    bool   // whether direct io was requested
	Metrics   stats.RunMetrics
}

// jsonResult is the json shape of a Result
type jsonResult struct {
	Files          int     `json:"files"`
	FileSize       int64   `json:"file_size_bytes"`
	ChunkSize      int64   `json:"chunk_size_bytes"`
	Strategy       string  `json:"strategy"`
	Direct         bool    `json:"direct"`
	Iterations     int     `json:"iterations"`
	BytesRead      int64   `json:"bytes_read"`
	Fallbacks      int     `json:"fallbacks"`
	ProvisionMs    float64 `json:"provision_ms"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	AvgLatencyUs   float64 `json:"avg_latency_us"`
	MinLatencyUs   float64 `json:"min_latency_us"`
	MeanLatencyUs  float64 `json:"mean_latency_us"`
	MaxLatencyUs   float64 `json:"max_latency_us"`
	Throughput     float64 `json:"throughput_mibs"`
	FilesPerSecond float64 `json:"files_per_second"`
}

// FormatResult formats a Result according to the specified format
func FormatResult(result Result, format OutputFormat) (string, error) {
	m := result.Metrics

	switch format {
	case TableFormat:
		var sb strings.Builder

		sb.WriteString(fmt.Sprintf("\n%-14s %d x %d bytes (%s, chunk %d, direct=%v)\n",
			"files", result.Files, result.FileSize, result.Strategy, result.ChunkSize, result.Direct))
		sb.WriteString(fmt.Sprintf("%-14s %s\n", "provisioning", m.ProvisionTime.Round(time.Microsecond)))
		sb.WriteString(fmt.Sprintf("%-14s %d\n", "iterations", m.Iterations))
		sb.WriteString(fmt.Sprintf("%-14s %d\n", "bytes read", m.BytesRead))
		sb.WriteString(fmt.Sprintf("%-14s %s\n", "elapsed", m.Elapsed.Round(time.Microsecond)))
		if m.Fallbacks > 0 {
			sb.WriteString(fmt.Sprintf("%-14s %d\n", "fallbacks", m.Fallbacks))
		}

		// latency and bandwidth rows
		sb.WriteString(fmt.Sprintf("\n%8s  %12s  %12s  %12s  %12s\n", "", "avg (us)", "min (us)", "max (us)", "BW (MiB/s)"))
		sb.WriteString(fmt.Sprintf("%8s  %12.2f  %12.2f  %12.2f  %12.2f\n", "read",
			micros(m.AvgLatency()), micros(m.Latency.Min), micros(m.Latency.Max), m.ThroughputMiBps()))

		return sb.String(), nil

	case JSONFormat:
		fr := jsonResult{
			Files:          result.Files,
			FileSize:       result.FileSize,
			ChunkSize:      result.ChunkSize,
			Strategy:       result.Strategy,
			Direct:         result.Direct,
			Iterations:     m.Iterations,
			BytesRead:      m.BytesRead,
			Fallbacks:      m.Fallbacks,
			ProvisionMs:    float64(m.ProvisionTime.Microseconds()) / 1000,
			ElapsedSeconds: m.Elapsed.Seconds(),
			AvgLatencyUs:   micros(m.AvgLatency()),
			MinLatencyUs:   micros(m.Latency.Min),
			MeanLatencyUs:  micros(m.Latency.Mean()),
			MaxLatencyUs:   micros(m.Latency.Max),
			Throughput:     m.ThroughputMiBps(),
			FilesPerSecond: m.FilesPerSecond(),
		}

		jsonBytes, err := json.MarshalIndent(fr, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal json: %w", err)
		}

		return string(jsonBytes) + "\n", nil

	case FlatFormat:
		// return space-separated values with no headers
		return fmt.Sprintf("%d %d %.6f %.2f %.2f %.2f\n",
			m.Iterations, m.BytesRead, m.Elapsed.Seconds(),
			micros(m.AvgLatency()), m.ThroughputMiBps(), m.FilesPerSecond()), nil

	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// ValidateFormat checks if the provided format string is a valid output format
func ValidateFormat(format string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(format))

	switch f {
	case TableFormat, JSONFormat, FlatFormat:
		return f, nil
	default:
		return "", fmt.Errorf("invalid format '%s'. supported formats are: table, json, flat", format)
	}
}

func micros(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1000
}
