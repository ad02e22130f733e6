/*
Copyright © 2025 jesse galley <jesse@jessegalley.net>
*/
package cmd

import (
	goflag "flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// program flags shared by every subcommand
var (
	outFmt     string // output format
	quiet      bool   // suppress progress output
	historyDB  string // path of the run history database
	cpuProfile string // write a cpu profile here
	version    bool   // print version and exit
)

// program info const
const progVersion string = "0.1.0"
const progAuthor string = "jesse galley <jesse@jessegalley.net>"

// profile is the open cpu profile, if any
var profile *os.File

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "readbench",
	Short: "Measure filesystem read throughput and latency.",
	Long: `readbench creates a set of equally sized files and reads them back in a
shuffled order, optionally bypassing the page cache with direct io, and
reports the bytes read, elapsed time and per file latency.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// check if version flag was set
		if version {
			fmt.Printf("readbench v%s\n%s\ngithub.com/jessegalley/readbench\n", progVersion, progAuthor)
			os.Exit(0)
		}

		// glog reads its settings from the go flag set, which cobra has
		// already filled in; mark it parsed so glog does not complain
		goflag.CommandLine.Parse([]string{})

		if cpuProfile != "" {
			f, err := os.Create(cpuProfile)
			if err != nil {
				return fmt.Errorf("failed to create cpu profile: %w", err)
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				return fmt.Errorf("failed to start cpu profile: %w", err)
			}
			profile = f
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	stopProfile()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}

// exitOnError reports a fatal error and exits with status 1
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	stopProfile()
	glog.Flush()
	os.Exit(1)
}

func stopProfile() {
	if profile == nil {
		return
	}
	pprof.StopCPUProfile()
	profile.Close()
	profile = nil
}

// wordSepNormalizeFunc lets glog's underscore flags (log_dir, ...) be
// spelled with dashes like every other flag
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func init() {
	// diagnostics go to stderr unless the user asks for log files
	goflag.Set("logtostderr", "true")
	rootCmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)

	rootCmd.PersistentFlags().StringVar(&outFmt, "format", "table", "output format (table, json, or flat)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not draw a progress bar")
	rootCmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "record finished runs in this bolt database")
	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "write a cpu profile to this file")
	rootCmd.PersistentFlags().BoolVarP(&version, "version", "V", false, "print version and exit")
}
