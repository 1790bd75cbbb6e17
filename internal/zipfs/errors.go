package zipfs

import (
	"errors"
	"syscall"

	"github.com/desertwitch/zipmount/internal/archive"
	"github.com/desertwitch/zipmount/internal/ziptree"
)

var (
	// ErrNotFound is returned for paths that are not within the archive.
	ErrNotFound = errors.New("no such entry")

	// ErrAccessDenied is returned when opening with any non-read-only mode.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnsupported is returned for operations outside of the contract,
	// such as a directory listing that does not start at offset zero.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrIsDir is returned when reading contents of a directory.
	ErrIsDir = errors.New("is a directory")

	// ErrInvalidArgument is returned for negative sizes or offsets.
	ErrInvalidArgument = errors.New("invalid argument")

	errMissingArgument = errors.New("missing argument")
	errInvalidPolicy   = errors.New("invalid caching policy")
)

// Errno translates an error of this package into the POSIX error number
// which is reported to the kernel. Unknown errors become [syscall.EIO].
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0

	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT

	case errors.Is(err, ErrAccessDenied):
		return syscall.EACCES

	case errors.Is(err, ErrIsDir):
		return syscall.EISDIR

	case errors.Is(err, ErrUnsupported):
		return syscall.ENOTSUP

	case errors.Is(err, ErrInvalidArgument):
		return syscall.EINVAL

	case errors.Is(err, archive.ErrArchiveUnreadable),
		errors.Is(err, ziptree.ErrDuplicateEntry):
		return syscall.EINVAL

	default:
		return syscall.EIO
	}
}
