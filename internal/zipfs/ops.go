package zipfs

import (
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/desertwitch/zipmount/internal/ziptree"
	"golang.org/x/sys/unix"
)

// Stat returns the [Attributes] of a path. Directories take the time of the
// first file found beneath them, or that of the archive itself if there is
// no file at all. [ErrNotFound] is returned for paths not in the archive.
func (fsys *FS) Stat(path string) (Attributes, error) {
	m := fsys.newMetric(false)
	defer m.Done()

	node, key, ok := fsys.lookup(path)
	if !ok {
		return Attributes{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	attr := Attributes{
		Uid: fsys.uid,
		Gid: fsys.gid,
	}

	var ts time.Time

	switch node.Kind {
	case ziptree.KindDir:
		attr.Mode = os.ModeDir | dirPerm
		attr.Nlink = 2
		ts = fsys.dirTime(node)

	case ziptree.KindFile:
		attr.Mode = filePerm
		attr.Nlink = 1
		attr.Size = node.Entry.Size
		ts = node.Entry.Modified

	default:
		panic(fmt.Sprintf("unhandled node kind %v at %q", node.Kind, key))
	}

	attr.Atime = ts
	attr.Mtime = ts
	attr.Ctime = ts

	return attr, nil
}

// dirTime returns the time of the first file within a directory subtree,
// falling back to the modified time of the archive for file-less subtrees.
func (fsys *FS) dirTime(node *ziptree.Node) time.Time {
	if e, ok := node.FirstFile(); ok {
		return e.Modified
	}

	return fsys.index.ModTime()
}

// List returns the names within a directory, always starting with "." and
// "..", followed by the children in archive order. Listings can only be
// requested from the start, so any non-zero offset yields [ErrUnsupported].
// [ErrNotFound] is returned for paths that are missing or not directories.
func (fsys *FS) List(path string, offset int64) (iter.Seq[string], error) {
	m := fsys.newMetric(false)
	defer m.Done()

	if offset != 0 {
		return nil, fmt.Errorf("%w: listing %q from offset %d", ErrUnsupported, path, offset)
	}

	node, key, ok := fsys.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if node.Kind != ziptree.KindDir {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrNotFound, key)
	}

	return func(yield func(string) bool) {
		if !yield(".") || !yield("..") {
			return
		}
		for name := range node.Names() {
			if !yield(name) {
				return
			}
		}
	}, nil
}

// Open checks that a path exists and that it is opened read-only.
// [ErrAccessDenied] is returned for any other access mode in flags.
func (fsys *FS) Open(path string, flags int) error {
	_, key, ok := fsys.lookup(path)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	if flags&unix.O_ACCMODE != unix.O_RDONLY {
		return fmt.Errorf("%w: %q (flags %#o)", ErrAccessDenied, key, flags)
	}

	return nil
}
