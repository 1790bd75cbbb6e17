/*
zipmount is a read-only FUSE filesystem that mounts a single ZIP archive and
exposes all of its contained files and directories. It indexes the archive
once at mount time and unpacks the file contents on-the-fly, keeping only the
last read file (or its open decompression stream) in a single-slot cache. It
includes a HTTP dashboard for basic filesystem metrics and runtime behavior.

The following signals are observed and handled by the filesystem:
  - SIGTERM or SIGINT (CTRL+C) gracefully unmounts the filesystem
  - SIGUSR1 forces a garbage collection (within Go)
  - SIGUSR2 dumps a diagnostic stacktrace to standard error (stderr)

When enabled, the diagnostics server exposes the following routes over HTTP:
  - "/" for filesystem dashboard and event ring-buffer
  - "/metrics.json" for the filesystem metrics in JSON format
  - "/gc" for forcing of a garbage collection (within Go)
  - "/reset" for resetting the filesystem metrics at runtime
  - "/set/verbose/<bool>" for toggling of verbose logging at runtime
*/
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertwitch/zipmount/internal/zipfs"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const (
	defaultRingBufferSize = 500
	stackTraceBuffer      = 1 << 24
)

var (
	// Version is the program version (filled in from the Makefile).
	Version string

	errInvalidArgument = errors.New("invalid argument")
)

// cliFlags are the raw values of all command-line flags.
type cliFlags struct {
	allowOther       bool
	cache            string
	cacheLimit       string
	cacheTTL         time.Duration
	dryRun           bool
	mustCRC32        bool
	ringBufferSize   int
	strictDuplicates bool
	utc              bool
	verbose          bool
	webserver        string
}

// programOpts are the validated options for a program run.
type programOpts struct {
	archivePath    string
	mountDir       string
	fsOpts         *zipfs.Options
	allowOther     bool
	dryRun         bool
	ringBufferSize int
	verbose        bool
	webserverAddr  string
}

func rootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:     helpTextUse,
		Short:   helpTextShort,
		Long:    helpTextLong,
		Version: Version,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.dryRun {
				return cobra.ExactArgs(1)(cmd, args)
			}

			return cobra.ExactArgs(2)(cmd, args) //nolint:mnd
		},
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			opts, err := newProgramOpts(args, flags)
			if err != nil {
				return err
			}

			return run(opts)
		},
	}

	cmd.Flags().BoolVarP(&flags.allowOther, "allow-other", "a", false, "Allow other users to access the filesystem")
	cmd.Flags().StringVarP(&flags.cache, "cache", "c", zipfs.PolicyStream.String(), "Caching policy for file contents (none, contents, stream)")
	cmd.Flags().StringVar(&flags.cacheLimit, "cache-limit", "200M", "Size cutoff for holding file contents in RAM (0 = no limit; only for \"contents\")")
	cmd.Flags().DurationVar(&flags.cacheTTL, "cache-ttl", 0, "Evict the cached file after being idle for this long (0 = never)")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "d", false, "Do not mount, but print the filesystem tree to standard output (stdout)")
	cmd.Flags().BoolVar(&flags.mustCRC32, "must-crc32", false, "Verify the integrity (CRC32) of uncompressed files also (slower)")
	cmd.Flags().IntVar(&flags.ringBufferSize, "ring-buffer-size", defaultRingBufferSize, "Amount of log lines to keep in memory for the dashboard")
	cmd.Flags().BoolVar(&flags.strictDuplicates, "strict-duplicates", false, "Refuse to mount archives with duplicate file paths")
	cmd.Flags().BoolVar(&flags.utc, "utc", false, "Interpret the timestamps of the archive as UTC (instead of local time)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log all filesystem events (including missing paths)")
	cmd.Flags().StringVarP(&flags.webserver, "webserver", "w", "", "Address to serve the diagnostics dashboard on (e.g. :8000; but disabled when empty)")

	return cmd
}

// newProgramOpts validates the arguments and flags into [programOpts].
func newProgramOpts(args []string, flags cliFlags) (programOpts, error) {
	policy, err := zipfs.ParsePolicy(flags.cache)
	if err != nil {
		return programOpts{}, fmt.Errorf("failed to parse --cache: %w", err)
	}

	limit, err := humanize.ParseBytes(flags.cacheLimit)
	if err != nil {
		return programOpts{}, fmt.Errorf("failed to parse --cache-limit: %w", err)
	}

	if flags.cacheTTL < 0 {
		return programOpts{}, fmt.Errorf("%w: --cache-ttl must not be negative", errInvalidArgument)
	}
	if flags.ringBufferSize <= 0 {
		return programOpts{}, fmt.Errorf("%w: --ring-buffer-size must be positive", errInvalidArgument)
	}
	if len(args) == 0 || args[0] == "" {
		return programOpts{}, fmt.Errorf("%w: need an archive", errInvalidArgument)
	}

	fsOpts := zipfs.DefaultOptions()
	fsOpts.Policy = policy
	fsOpts.ContentsLimit = limit
	fsOpts.CacheTTL = flags.cacheTTL
	fsOpts.MustCRC32 = flags.mustCRC32
	fsOpts.StrictDuplicates = flags.strictDuplicates
	if flags.utc {
		fsOpts.Location = time.UTC
	}

	opts := programOpts{
		archivePath:    args[0],
		fsOpts:         fsOpts,
		allowOther:     flags.allowOther,
		dryRun:         flags.dryRun,
		ringBufferSize: flags.ringBufferSize,
		verbose:        flags.verbose,
		webserverAddr:  flags.webserver,
	}

	if !flags.dryRun {
		if len(args) < 2 || args[1] == "" { //nolint:mnd
			return programOpts{}, fmt.Errorf("%w: need a mountpoint", errInvalidArgument)
		}
		opts.mountDir = args[1]
	}

	return opts, nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
