package filesystem

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

var (
	_ fs.Node               = (*dirNode)(nil)
	_ fs.NodeOpener         = (*dirNode)(nil)
	_ fs.HandleReadDirAller = (*dirNode)(nil)
	_ fs.NodeStringLookuper = (*dirNode)(nil)
)

// dirNode is a (explicit or implicit) directory within the archive.
type dirNode struct {
	fsys   *FS    // Pointer to our filesystem.
	inode  uint64 // Inode within our filesystem.
	parent uint64 // Inode of the parent directory (itself for the root).
	path   string // Path within the archive filesystem ("" for the root).
}

func (d *dirNode) Attr(_ context.Context, a *fuse.Attr) error {
	d.fsys.mu.Lock()
	defer d.fsys.mu.Unlock()

	attr, err := d.fsys.core.Stat(d.path)
	if err != nil {
		return d.fsys.fail("Attr", d.path, err)
	}
	fillAttr(a, d.inode, attr)

	return nil
}

func (d *dirNode) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	d.fsys.mu.Lock()
	defer d.fsys.mu.Unlock()

	if err := d.fsys.core.Open(d.path, int(req.Flags)); err != nil {
		return nil, d.fsys.fail("Open", d.path, err)
	}
	resp.Flags |= fuse.OpenKeepCache | fuse.OpenCacheDir

	return d, nil
}

func (d *dirNode) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	d.fsys.mu.Lock()
	defer d.fsys.mu.Unlock()

	names, err := d.fsys.core.List(d.path, 0)
	if err != nil {
		return nil, d.fsys.fail("ReadDirAll", d.path, err)
	}

	resp := []fuse.Dirent{}

	for name := range names {
		switch name {
		case ".":
			resp = append(resp, fuse.Dirent{Name: name, Type: fuse.DT_Dir, Inode: d.inode})

			continue
		case "..":
			resp = append(resp, fuse.Dirent{Name: name, Type: fuse.DT_Dir, Inode: d.parent})

			continue
		}

		attr, err := d.fsys.core.Stat(childPath(d.path, name))
		if err != nil {
			return nil, d.fsys.fail("ReadDirAll", childPath(d.path, name), err)
		}

		de := fuse.Dirent{
			Name:  name,
			Type:  fuse.DT_File,
			Inode: fs.GenerateDynamicInode(d.inode, name),
		}
		if attr.IsDir() {
			de.Type = fuse.DT_Dir
		}
		resp = append(resp, de)
	}

	return resp, nil
}

func (d *dirNode) Lookup(_ context.Context, name string) (fs.Node, error) {
	d.fsys.mu.Lock()
	defer d.fsys.mu.Unlock()

	path := childPath(d.path, name)

	attr, err := d.fsys.core.Stat(path)
	if err != nil {
		return nil, d.fsys.fail("Lookup", path, err)
	}

	inode := fs.GenerateDynamicInode(d.inode, name)

	if attr.IsDir() {
		return &dirNode{
			fsys:   d.fsys,
			inode:  inode,
			parent: d.inode,
			path:   path,
		}, nil
	}

	return &fileNode{
		fsys:  d.fsys,
		inode: inode,
		path:  path,
	}, nil
}
