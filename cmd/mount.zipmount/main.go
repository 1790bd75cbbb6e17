/*
mount.zipmount - FUSE mount helper

This program is a helper for the mount/fstab mechanism.
It is normally located in /sbin or another directory
searched by mount(8) for filesystem helpers, and is
not intended to be invoked directly by end users.

Usage:
  mount.zipmount archive mountpoint [-o key[=value],key[=value],...]

For running the filesystem as another (e.g. unprivileged) user:
  mount.zipmount archive mountpoint -o setuid=USER[,key[=value],...]

Example (fstab entry):
  /srv/data.zip   /mnt/data   zipmount   allow_other,cache=contents   0  0

Filesystem-specific options need to be adapted into this format:
  --webserver :8000 --strict-duplicates => webserver=:8000,strict_duplicates

Mount helper events are logged to standard error (stderr).
Filesystem events are logged to '/var/log/zipmount.log' (if writeable).
*/
//nolint:mnd,err113
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultType         = "zipmount"
	defaultMountLog     = "/var/log/zipmount.log"
	defaultMountTimeout = 20 * time.Second
)

var (
	// Version is the program version (filled in from the Makefile).
	Version string

	allowedKeys = map[string]struct{}{
		"allow-other":       {},
		"cache":             {},
		"cache-limit":       {},
		"cache-ttl":         {},
		"must-crc32":        {},
		"ring-buffer-size":  {},
		"strict-duplicates": {},
		"utc":               {},
		"verbose":           {},
		"webserver":         {},
	}
)

// MountHelper translates a mount(8) invocation into a filesystem command.
type MountHelper struct {
	Program    string
	Type       string
	Source     string
	Mountpoint string
	Options    map[string]string

	Setuid  string        // setuid=USER
	Binary  string        // xbin=PATH
	LogFile string        // xlog=PATH
	Timeout time.Duration // xtim=SECS
}

func newMountHelper(args []string) (*MountHelper, error) {
	if len(args) < 3 {
		return nil, errors.New("need source and mountpoint arguments")
	}

	mh := &MountHelper{
		Program:    args[0],
		Source:     args[1],
		Type:       defaultType,
		Mountpoint: args[2],
		Options:    make(map[string]string),
		LogFile:    defaultMountLog,
		Timeout:    defaultMountTimeout,
	}

	if mh.Source == "" {
		return nil, errors.New("no source argument was given")
	}
	if mh.Mountpoint == "" {
		return nil, errors.New("no mountpoint argument was given")
	}

	basename := filepath.Base(mh.Program)
	if after, ok := strings.CutPrefix(basename, "mount.fuse."); ok {
		mh.Type = after
	} else if after0, ok0 := strings.CutPrefix(basename, "mount.fuseblk."); ok0 {
		mh.Type = after0
	}

	err := mh.parseOptions(args[3:])
	if err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}

	if mh.Type == "" {
		err := mh.deriveTypeFromSource()
		if err != nil {
			return nil, fmt.Errorf("failed to derive fs type: %w", err)
		}
	}

	return mh, nil
}

func (mh *MountHelper) parseOptions(args []string) error {
	for i := 0; i < len(args); i++ { //nolint:intrange
		arg := args[i]

		if arg == "-v" || arg == "-o" {
			continue
		}

		if arg == "-t" {
			err := mh.deriveTypeFromArg(&i, args)
			if err != nil {
				return fmt.Errorf("failed to derive type: %w", err)
			}

			continue
		}

		for opt := range strings.SplitSeq(arg, ",") {
			if opt == "" {
				continue
			}
			opt = strings.TrimPrefix(opt, "--")

			key, val, hasVal := strings.Cut(opt, "=")
			key = strings.ReplaceAll(key, "_", "-")

			if !hasVal {
				if _, ok := allowedKeys[key]; ok {
					mh.Options[key] = ""
				}

				continue
			}

			if err := mh.setOption(key, val); err != nil {
				return err
			}
		}
	}

	return nil
}

func (mh *MountHelper) setOption(key string, val string) error {
	switch key {
	case "setuid":
		mh.Setuid = val

	case "xbin":
		if val == "" {
			return errors.New("empty value to option 'xbin'")
		}
		mh.Binary = val

	case "xlog":
		if val == "" {
			return errors.New("empty value to option 'xlog'")
		}
		mh.LogFile = val

	case "xtim":
		secs, err := strconv.Atoi(val)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid value %q to option 'xtim' (need seconds > 0)", val)
		}
		mh.Timeout = time.Duration(secs) * time.Second

	default:
		if _, ok := allowedKeys[key]; ok {
			mh.Options[key] = val
		}
	}

	return nil
}

func (mh *MountHelper) deriveTypeFromArg(i *int, args []string) error {
	*i++
	if *i >= len(args) {
		return errors.New("missing value to argument '-t'")
	}
	t := args[*i]
	if after, ok := strings.CutPrefix(t, "fuse."); ok {
		t = after
	} else if after0, ok0 := strings.CutPrefix(t, "fuseblk."); ok0 {
		t = after0
	}
	if t == "" {
		return errors.New("missing value to argument '-t'")
	}
	mh.Type = t

	return nil
}

func (mh *MountHelper) deriveTypeFromSource() error {
	typ, source, ok := strings.Cut(mh.Source, "#")
	if !ok {
		return errors.New("source argument is not in format 'type#source'")
	}

	if typ == "" {
		return errors.New("empty type before '#' in source argument")
	}
	if source == "" {
		return errors.New("empty source after '#' in source argument")
	}

	mh.Type = typ
	mh.Source = source

	return nil
}

func main() {
	if len(os.Args) < 3 {
		progName := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, helpTextLong, progName, Version, progName, progName, defaultMountLog)
		os.Exit(1)
	}

	helper, err := newMountHelper(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = helper.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
