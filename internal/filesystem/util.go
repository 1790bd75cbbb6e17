package filesystem

import (
	"errors"

	"bazil.org/fuse"
	"github.com/desertwitch/zipmount/internal/zipfs"
)

// fail converts an error of the archive filesystem into the [fuse.Errno]
// returned to the kernel. Anything but a missing path is counted and logged.
func (fsys *FS) fail(op string, path string, err error) error {
	if !errors.Is(err, zipfs.ErrNotFound) {
		fsys.core.CountError()
		fsys.rbuf.Printf("Error: %q->%s: %v\n", "/"+path, op, err)
	} else {
		fsys.rbuf.Debugf("%q->%s: %v\n", "/"+path, op, err)
	}

	return toFuseErr(err)
}

func toFuseErr(err error) error {
	return fuse.ToErrno(zipfs.Errno(err))
}

// fillAttr copies the [zipfs.Attributes] into a [fuse.Attr].
func fillAttr(a *fuse.Attr, inode uint64, attr zipfs.Attributes) {
	a.Inode = inode
	a.Mode = attr.Mode
	a.Nlink = attr.Nlink
	a.Size = attr.Size

	a.Atime = attr.Atime
	a.Mtime = attr.Mtime
	a.Ctime = attr.Ctime

	a.Uid = attr.Uid
	a.Gid = attr.Gid
}

// childPath joins a directory path of the archive filesystem with a name.
func childPath(dir string, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}
