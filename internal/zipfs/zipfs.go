// Package zipfs maps the directory tree of an archive onto the operations
// of a read-only filesystem: attributes, directory listings and reads.
//
// An [FS] is not safe for concurrent use. The underlying decompression
// streams must never be entered by two goroutines at once, so callers
// have to serialize all requests (see the filesystem package).
package zipfs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/desertwitch/zipmount/internal/archive"
	"github.com/desertwitch/zipmount/internal/logging"
	"github.com/desertwitch/zipmount/internal/ziptree"
	"golang.org/x/sys/unix"
)

const (
	filePerm = 0o444 // RO
	dirPerm  = 0o755

	defaultPolicy        = PolicyStream
	defaultContentsLimit = 200 * 1000 * 1000 // 200MB
	defaultCacheTTL      = 0                 // never
)

// Options contains all settings for the operation of the [FS].
// None of them can be modified once the [FS] was created.
type Options struct {
	// Policy is the caching policy used for reading file contents.
	Policy Policy

	// ContentsLimit is the largest entry size that [PolicyContents]
	// loads into memory. Larger entries are read uncached (0 = no limit).
	ContentsLimit uint64

	// CacheTTL evicts a cached entry after being idle for this long.
	// It is only checked on access, so zero (default) disables expiry.
	CacheTTL time.Duration

	// Location is used to interpret the timezone-less member times.
	// When nil, [time.Local] is used.
	Location *time.Location

	// MustCRC32 controls if stored (uncompressed) members must still run
	// through the integrity verification algorithm (CRC32), which is slower.
	MustCRC32 bool

	// StrictDuplicates fails loading on repeated member paths,
	// instead of letting the last entry of such a path win.
	StrictDuplicates bool
}

// DefaultOptions returns a pointer to [Options] with the default values.
func DefaultOptions() *Options {
	return &Options{
		Policy:        defaultPolicy,
		ContentsLimit: defaultContentsLimit,
		CacheTTL:      defaultCacheTTL,
	}
}

// Attributes are the filesystem attributes of a path.
type Attributes struct {
	Mode  os.FileMode
	Nlink uint32
	Size  uint64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Uid   uint32 //nolint:revive
	Gid   uint32 //nolint:revive
}

// IsDir reports whether the attributes describe a directory.
func (a Attributes) IsDir() bool {
	return a.Mode.IsDir()
}

// FS is the core implementation of the archive filesystem.
// You must call Close() once all work is complete.
type FS struct {
	Options   *Options
	Metrics   *Metrics
	MountTime time.Time

	index *archive.Index
	tree  *ziptree.Tree
	cache *contentCache

	uid uint32
	gid uint32

	rbuf *logging.RingBuffer
}

// Load indexes the archive at path, builds its tree and returns a new [FS].
// The returned [FS] owns the index and closes it on Close().
func Load(path string, opts *Options, rbuf *logging.RingBuffer) (*FS, error) {
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errMissingArgument)
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	idx, err := archive.Load(path, &archive.Options{
		Location:  opts.Location,
		MustCRC32: opts.MustCRC32,
		Logf:      rbuf.Printf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index archive: %w", err)
	}

	tree, err := ziptree.Build(idx.Entries(), &ziptree.Options{
		StrictDuplicates: opts.StrictDuplicates,
		Logf:             rbuf.Printf,
	})
	if err != nil {
		idx.Close()

		return nil, fmt.Errorf("failed to build tree: %w", err)
	}

	fsys, err := New(idx, tree, opts, rbuf)
	if err != nil {
		idx.Close()

		return nil, err
	}

	return fsys, nil
}

// New returns a pointer to a new [FS] over an already built [ziptree.Tree].
// The effective user and group are captured once and reported as the owner
// of every file and directory.
func New(idx *archive.Index, tree *ziptree.Tree, opts *Options, rbuf *logging.RingBuffer) (*FS, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: need an archive index", errMissingArgument)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: need a tree", errMissingArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errMissingArgument)
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if !opts.Policy.valid() {
		return nil, fmt.Errorf("%w: %v", errInvalidPolicy, opts.Policy)
	}

	fsys := &FS{
		Options:   opts,
		Metrics:   &Metrics{},
		MountTime: time.Now(),
		index:     idx,
		tree:      tree,
		uid:       uint32(unix.Geteuid()), //nolint:gosec
		gid:       uint32(unix.Getegid()), //nolint:gosec
		rbuf:      rbuf,
	}
	fsys.cache = newContentCache(fsys, opts.CacheTTL)

	return fsys, nil
}

// Close releases any cached streams and closes the archive.
func (fsys *FS) Close() error {
	fsys.cache.clear()

	if err := fsys.index.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	return nil
}

// ArchivePath returns the path of the mounted archive.
func (fsys *FS) ArchivePath() string {
	return fsys.index.Path()
}

// Tree returns the directory tree of the mounted archive.
func (fsys *FS) Tree() *ziptree.Tree {
	return fsys.tree
}

// Owner returns the effective user and group captured at creation.
func (fsys *FS) Owner() (uint32, uint32) {
	return fsys.uid, fsys.gid
}

// CachedPath returns the path currently held by the content cache.
// The result is only meaningful while no request is being served.
func (fsys *FS) CachedPath() (string, bool) {
	return fsys.cache.current()
}

// CountError records an error which was reported to the kernel.
func (fsys *FS) CountError() {
	fsys.Metrics.Errors.Add(1)
}

// lookup resolves a filesystem path, with any leading slashes stripped.
func (fsys *FS) lookup(path string) (*ziptree.Node, string, bool) {
	key := strings.TrimLeft(path, "/")
	n, ok := fsys.tree.Lookup(key)

	return n, key, ok
}
