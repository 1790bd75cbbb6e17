// Package filesystem implements the FUSE filesystem.
//
// It is a thin bridge from the kernel requests (as delivered by the FUSE
// library) onto the archive filesystem of the zipfs package. The library
// serves every request in its own goroutine, so all calls into the archive
// filesystem are serialized through a single mutex of the [FS].
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/desertwitch/zipmount/internal/logging"
	"github.com/desertwitch/zipmount/internal/zipfs"
)

const (
	rootInode   = 1
	maxNameLen  = 255
	statfsBsize = 4096
)

var (
	_ fs.FS               = (*FS)(nil)
	_ fs.FSInodeGenerator = (*FS)(nil)
	_ fs.FSStatfser       = (*FS)(nil)

	errMissingArgument = errors.New("missing argument")
)

// FS is the FUSE implementation of the archive filesystem.
type FS struct {
	mu   sync.Mutex // serializes all access to core
	core *zipfs.FS
	rbuf *logging.RingBuffer
}

// NewFS returns a pointer to a new [FS] serving the given archive filesystem.
// The archive filesystem remains owned by the caller, who must close it.
func NewFS(core *zipfs.FS, rbuf *logging.RingBuffer) (*FS, error) {
	if core == nil {
		return nil, fmt.Errorf("%w: need an archive filesystem", errMissingArgument)
	}
	if rbuf == nil {
		return nil, fmt.Errorf("%w: need a ring buffer", errMissingArgument)
	}

	return &FS{
		core: core,
		rbuf: rbuf,
	}, nil
}

// Root returns the entry-point [fs.Node] of the filesystem.
func (fsys *FS) Root() (fs.Node, error) {
	return &dirNode{
		fsys:   fsys,
		inode:  rootInode,
		parent: rootInode,
		path:   "",
	}, nil
}

// GenerateInode implements [fs.FSInodeGenerator] to prevent dynamic
// inode generation by the fallback method inside of the FUSE library.
//
// [FS] derives all inodes from the parent inode and the entry name, so any
// dynamic generation within the FUSE library (being the fallback on zero
// inodes) reveals a bug. Calls to this method will therefore panic.
func (fsys *FS) GenerateInode(_ uint64, _ string) uint64 {
	panic("unhandled zero inode triggered an illegal dynamic generation")
}

// Statfs reports a filesystem without any free space.
func (fsys *FS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	tree := fsys.core.Tree()

	resp.Bsize = statfsBsize
	resp.Frsize = statfsBsize
	resp.Namelen = maxNameLen
	resp.Files = uint64(tree.Len()) //nolint:gosec

	return nil
}

// Core returns the underlying archive filesystem. Its [zipfs.Metrics] are
// safe to read at any time, anything else must go through [FS.Do].
func (fsys *FS) Core() *zipfs.FS {
	return fsys.core
}

// Do runs fn while holding the lock that serializes all kernel requests.
func (fsys *FS) Do(fn func(core *zipfs.FS)) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	fn(fsys.core)
}

// CachedPath returns the path currently held by the content cache.
func (fsys *FS) CachedPath() (string, bool) {
	var path string
	var ok bool

	fsys.Do(func(core *zipfs.FS) {
		path, ok = core.CachedPath()
	})

	return path, ok
}

// WalkFunc gets called on each visited [fs.Node] as part of a [FS.Walk].
// Do note that as the root directory is synthetic, the [fuse.Dirent] will be nil.
// All paths provided to the callback will be absolute to the filesystem root.
type WalkFunc func(path string, dirent *fuse.Dirent, node fs.Node, attr fuse.Attr) error

// Walk constructs and walks the [FS] in-memory, calling walkFn on each visited [fs.Node].
// The "." and ".." entries of the directories are not visited.
func (fsys *FS) Walk(ctx context.Context, walkFn WalkFunc) error {
	root, err := fsys.Root()
	if err != nil {
		return fmt.Errorf("failed to get fs root: %w", err)
	}

	return fsys.walkNode(ctx, "/", nil, root, walkFn)
}

// walkNode handles walking of a [fs.Node] within the [FS].
func (fsys *FS) walkNode(ctx context.Context, path string, dirent *fuse.Dirent, node fs.Node, walkFn WalkFunc) error {
	var attr fuse.Attr

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := node.Attr(ctx, &attr); err != nil {
		return fmt.Errorf("attr error at %q: %w", path, err)
	}

	if err := walkFn(path, dirent, node, attr); err != nil {
		return fmt.Errorf("walkfn error at %q: %w", path, err)
	}

	if readDirNode, ok := node.(fs.HandleReadDirAller); ok {
		dirents, err := readDirNode.ReadDirAll(ctx)
		if err != nil {
			return fmt.Errorf("readdirall error at %q: %w", path, err)
		}

		if lookupNode, ok := node.(fs.NodeStringLookuper); ok {
			for _, de := range dirents {
				if de.Name == "." || de.Name == ".." {
					continue
				}

				childPath := path
				if path != "/" {
					childPath += "/"
				}
				childPath += de.Name

				childNode, err := lookupNode.Lookup(ctx, de.Name)
				if err != nil {
					return fmt.Errorf("lookup error for %q at %q: %w", de.Name, path, err)
				}

				if err := fsys.walkNode(ctx, childPath, &de, childNode, walkFn); err != nil {
					return fmt.Errorf("walkfn error at %q: %w", childPath, err)
				}
			}
		}
	}

	return nil
}
