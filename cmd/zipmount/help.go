package main

const (
	helpTextUse = "zipmount <archive> <mountpoint>"

	helpTextShort = "a read-only FUSE filesystem for a single ZIP archive"

	helpTextLong = `zipmount is a read-only FUSE filesystem that mounts a single ZIP archive,
exposing all of its contained files and (explicit or implicit) directories.
The directory tree is built once at mount time, file contents are unpacked
on-the-fly and kept in a single-slot cache, which is either holding the fully
decompressed contents or the open decompression stream of the last read file.

Caching policies for file contents (--cache):
- "none" decompresses the requested range on every read
- "contents" holds the entire contents of the last read file in RAM
- "stream" holds the open stream of the last read file (default)

When mounted, the following OS signals are observed at runtime:
- SIGTERM/SIGINT for gracefully unmounting the FS
- SIGUSR1 for forcing a garbage collection run within Go
- SIGUSR2 for printing a stack trace to standard error (stderr)

When enabled, the diagnostics dashboard exposes the following routes:
- "/" for filesystem dashboard and event ring-buffer
- "/metrics.json" for the filesystem metrics in JSON format
- "/gc" for forcing of a garbage collection (within Go)
- "/reset" for resetting the filesystem metrics at runtime
- "/set/verbose/<bool>" for toggling of verbose logging at runtime

With --dry-run, only the archive argument is needed. The filesystem is then
not mounted, but walked in-memory and printed to standard output (stdout).`
)
