package filesystem

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

var (
	_ fs.Node         = (*fileNode)(nil)
	_ fs.NodeOpener   = (*fileNode)(nil)
	_ fs.HandleReader = (*fileNode)(nil)
)

// fileNode is a file within the archive, presented as a read-only regular
// file. The node is its own handle, the contents are only ever read through
// the (caching) archive filesystem.
type fileNode struct {
	fsys  *FS    // Pointer to our filesystem.
	inode uint64 // Inode within our filesystem.
	path  string // Path within the archive filesystem.
}

func (f *fileNode) Attr(_ context.Context, a *fuse.Attr) error {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()

	attr, err := f.fsys.core.Stat(f.path)
	if err != nil {
		return f.fsys.fail("Attr", f.path, err)
	}
	fillAttr(a, f.inode, attr)

	return nil
}

func (f *fileNode) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()

	if err := f.fsys.core.Open(f.path, int(req.Flags)); err != nil {
		return nil, f.fsys.fail("Open", f.path, err)
	}
	resp.Flags |= fuse.OpenKeepCache

	return f, nil
}

func (f *fileNode) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	f.fsys.mu.Lock()
	defer f.fsys.mu.Unlock()

	data, err := f.fsys.core.Read(f.path, req.Size, req.Offset)
	if err != nil {
		return f.fsys.fail("Read", f.path, err)
	}
	resp.Data = data

	return nil
}
