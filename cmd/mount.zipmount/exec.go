//nolint:mnd,err113,noctx
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"
)

const helperFDEnv = "ZIPMOUNT_HELPER_FD"

// BuildCommand returns the filesystem command line, binary first.
func (mh *MountHelper) BuildCommand() []string {
	bin := mh.Type
	if mh.Binary != "" {
		bin = mh.Binary
	}

	parts := make([]string, 0, 3+2*len(mh.Options))
	parts = append(parts, bin, mh.Source, mh.Mountpoint)
	parts = append(parts, mh.BuildOptions()...)

	return parts
}

// BuildOptions returns the filesystem flags in sorted order.
func (mh *MountHelper) BuildOptions() []string {
	parts := []string{}

	keys := make([]string, 0, len(mh.Options))
	for k := range mh.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		parts = append(parts, "--"+key)
		if val := mh.Options[key]; val != "" {
			parts = append(parts, val)
		}
	}

	return parts
}

// Execute starts the filesystem in the background and waits until it is
// mounted, or the timeout has passed.
func (mh *MountHelper) Execute() error {
	mh.setupEnvironment()

	cmdArgs := mh.BuildCommand()

	bin, err := exec.LookPath(cmdArgs[0])
	if err != nil {
		return fmt.Errorf(helpErrNotFound, cmdArgs[0])
	}
	cmdArgs[0] = bin

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

	spa := &syscall.SysProcAttr{Setsid: true}
	if mh.Setuid != "" {
		uid, gid, err := resolveUser(mh.Setuid)
		if err == nil {
			spa.Credential = &syscall.Credential{
				Uid: uid,
				Gid: gid,
			}
		} else {
			safeCmdArgs := make([]string, len(cmdArgs))
			for i, arg := range cmdArgs {
				safeCmdArgs[i] = shellescape.Quote(arg)
			}
			innerCmdLine := strings.Join(safeCmdArgs, " ")
			outerCmdLine := fmt.Sprintf("su - %s -c %s", shellescape.Quote(mh.Setuid), shellescape.Quote(innerCmdLine))
			cmd = exec.Command("/bin/sh", "-c", outerCmdLine)
		}
	}
	cmd.SysProcAttr = spa

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull

	logFile, err := os.OpenFile(mh.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mount.zipmount warning: cannot open %q (%v), discarding filesystem events.\n", mh.LogFile, err)
	} else {
		defer logFile.Close()
		cmd.Stdout, cmd.Stderr = logFile, logFile
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("pipe error: %w", err)
	}
	defer r.Close()
	cmd.Env = append(os.Environ(), helperFDEnv+"=3")
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		w.Close()

		return fmt.Errorf("process error: %w", err)
	}
	_ = cmd.Process.Release()
	w.Close()

	if err := mh.waitForMount(r); err != nil {
		return fmt.Errorf("mount error: %w", err)
	}

	return nil
}

func (mh *MountHelper) setupEnvironment() {
	if mh.Setuid == "" && os.Getenv("HOME") == "" {
		os.Setenv("HOME", "/root")
	}

	currentPath := os.Getenv("PATH")
	additionalPath := "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	if currentPath == "" {
		os.Setenv("PATH", additionalPath)
	} else {
		os.Setenv("PATH", currentPath+":"+additionalPath)
	}
}

// waitForMount returns once the filesystem reports readiness over r, or the
// mountpoint shows up in the mount table. A closed pipe (the filesystem exited
// or never notified) falls back to polling the mount table until the timeout.
func (mh *MountHelper) waitForMount(r io.Reader) error {
	signalDone := make(chan error, 1)
	go func() {
		defer close(signalDone)
		buf := make([]byte, 1)
		_, err := r.Read(buf)
		signalDone <- err
	}()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	totalTimeout := time.After(mh.Timeout)
	for {
		select {
		case signalErr := <-signalDone:
			if signalErr == nil {
				return nil
			}
			signalDone = nil

		case <-ticker.C:
			if isMounted, _ := mh.checkMountTable(); isMounted {
				return nil
			}

		case <-totalTimeout:
			if isMounted, _ := mh.checkMountTable(); isMounted {
				return nil
			}

			return fmt.Errorf(helpErrMountTimeout, int(mh.Timeout.Seconds()), mh.LogFile)
		}
	}
}

func (mh *MountHelper) checkMountTable() (bool, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return false, fmt.Errorf("cannot open /proc/self/mountinfo: %w", err)
	}
	defer f.Close()

	return mountinfoContains(f, mh.Mountpoint)
}

// mountinfoContains reports whether a mountinfo table lists mountpoint.
func mountinfoContains(r io.Reader, mountpoint string) (bool, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 4 && fields[4] == mountpoint {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("error reading mountinfo: %w", err)
	}

	return false, nil
}
