package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/desertwitch/zipmount/internal/filesystem"
	"github.com/desertwitch/zipmount/internal/logging"
	"github.com/desertwitch/zipmount/internal/webserver"
	"github.com/desertwitch/zipmount/internal/zipfs"
	"github.com/dustin/go-humanize"
)

// helperFDEnv names the inherited descriptor the mount helper waits on.
const helperFDEnv = "ZIPMOUNT_HELPER_FD"

func run(opts programOpts) error {
	rbuf := logging.NewRingBuffer(opts.ringBufferSize, os.Stderr)
	rbuf.SetVerbose(opts.verbose)

	core, err := zipfs.Load(opts.archivePath, opts.fsOpts, rbuf)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}
	defer core.Close()

	tree := core.Tree()
	rbuf.Printf("Loaded %q: %d files, %d directories, %d duplicates.\n",
		core.ArchivePath(), tree.Files(), tree.Dirs(), tree.Duplicates())

	fsys, err := filesystem.NewFS(core, rbuf)
	if err != nil {
		return fmt.Errorf("fs setup error: %w", err)
	}

	if opts.dryRun {
		return dryRun(context.Background(), fsys, os.Stdout)
	}

	mountOpts := []fuse.MountOption{
		fuse.ReadOnly(),
		fuse.FSName("zipmount"),
		fuse.Subtype("zipmount"),
	}
	if opts.allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	c, err := fuse.Mount(opts.mountDir, mountOpts...)
	if err != nil {
		return fmt.Errorf("fs mount error: %w", err)
	}
	defer c.Close()
	defer fuse.Unmount(opts.mountDir) //nolint:errcheck

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	wg.Go(func() {
		defer close(errChan)
		if err := fs.Serve(c, fsys); err != nil {
			errChan <- fmt.Errorf("fs serve error: %w", err)
		}
	})

	rbuf.Printf("Mounted %q on %q (cache: %s).\n", core.ArchivePath(), opts.mountDir, core.Options.Policy)

	if err := notifyHelper(os.Getenv(helperFDEnv)); err != nil {
		rbuf.Printf("Mount helper notification error: %v\n", err)
	}

	if opts.webserverAddr != "" {
		dash, err := webserver.NewFSDashboard(fsys, rbuf, Version)
		if err != nil {
			return fmt.Errorf("webserver setup error: %w", err)
		}
		srv := dash.Serve(opts.webserverAddr)
		defer srv.Close()
	}

	stopSignals := handleSignals(opts.mountDir, rbuf)
	defer stopSignals()

	wg.Wait()

	rbuf.Println("Filesystem was unmounted.")

	return <-errChan
}

// handleSignals observes the runtime signals until the returned function is called.
func handleSignals(mountDir string, rbuf *logging.RingBuffer) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range sig {
			rbuf.Println("Signal received, unmounting the filesystem...")

			if err := fuse.Unmount(mountDir); err != nil {
				rbuf.Printf("Unmount error: %v (try again later)\n", err)

				continue
			}

			return
		}
	}()

	sig1 := make(chan os.Signal, 1)
	signal.Notify(sig1, syscall.SIGUSR1)
	go func() {
		for range sig1 {
			runtime.GC()
			debug.FreeOSMemory()

			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			rbuf.Printf("Signal received, forced GC, current heap: %s.\n", humanize.IBytes(m.Alloc))
		}
	}()

	sig2 := make(chan os.Signal, 1)
	signal.Notify(sig2, syscall.SIGUSR2)
	go func() {
		for range sig2 {
			rbuf.Println("Signal received, printing stacktrace (to stderr)...")
			buf := make([]byte, stackTraceBuffer)
			stacklen := runtime.Stack(buf, true)
			os.Stderr.Write(buf[:stacklen])
		}
	}()

	return func() {
		signal.Stop(sig)
		signal.Stop(sig1)
		signal.Stop(sig2)
		close(sig)
		close(sig1)
		close(sig2)
	}
}

// notifyHelper signals a waiting mount helper (over the inherited
// descriptor) that the filesystem is mounted. Without one, it does nothing.
func notifyHelper(fdStr string) error {
	if fdStr == "" {
		return nil
	}

	fd, err := strconv.Atoi(fdStr)
	if err != nil || fd < 0 {
		return fmt.Errorf("%w: bad descriptor %q", errInvalidArgument, fdStr)
	}

	f := os.NewFile(uintptr(fd), "helper")
	if f == nil {
		return fmt.Errorf("%w: bad descriptor %q", errInvalidArgument, fdStr)
	}
	defer f.Close()

	if _, err := f.Write([]byte{1}); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}

// dryRun walks the filesystem in-memory and prints every node to w.
func dryRun(ctx context.Context, fsys *filesystem.FS, w io.Writer) error {
	var files, dirs int
	var size uint64

	err := fsys.Walk(ctx, func(path string, _ *fuse.Dirent, _ fs.Node, attr fuse.Attr) error {
		if attr.Mode.IsDir() {
			dirs++
		} else {
			files++
			size += attr.Size
		}

		_, err := fmt.Fprintf(w, "%s %10s %s %s\n",
			attr.Mode, humanize.IBytes(attr.Size), attr.Mtime.Format("2006-01-02 15:04:05"), path)

		return err //nolint:wrapcheck
	})
	if err != nil {
		return fmt.Errorf("fs walk error: %w", err)
	}

	if _, err := fmt.Fprintf(w, "%d files (%s), %d directories\n", files, humanize.IBytes(size), dirs); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}
