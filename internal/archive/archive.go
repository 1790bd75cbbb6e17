// Package archive implements the read-only index of a ZIP archive.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrArchiveUnreadable is returned when an archive cannot be opened
	// or its central directory cannot be indexed.
	ErrArchiveUnreadable = errors.New("archive unreadable")

	// errNotRegular occurs when a stream is requested for a directory record.
	errNotRegular = errors.New("not a regular member")

	errMissingArgument = errors.New("missing argument")
)

// Options contains the settings for indexing an archive.
type Options struct {
	// Location is used to interpret the calendar fields of member times.
	// Archive records carry no timezone, so nil falls back to [time.Local].
	Location *time.Location

	// MustCRC32 controls if stored (uncompressed) members must still run
	// through the integrity verification algorithm (CRC32), which is slower
	// and also prevents actual seeking within these members.
	MustCRC32 bool

	// Logf receives notices about skipped records, when not nil.
	Logf func(format string, args ...any)
}

// Entry is one member of the archive. It is immutable after [Load].
type Entry struct {
	Path     string    // Normalized path (slash separated, no leading slash).
	Size     uint64    // Uncompressed size of the member.
	Modified time.Time // Modified time of the member.
	IsDir    bool      // Whether the record is an explicit directory.

	file      *zip.File
	mustCRC32 bool
}

// Index is the parsed central directory of an archive.
// You must call Close() once the index is no longer needed.
type Index struct {
	path    string
	modTime time.Time
	rc      *zip.ReadCloser
	entries []*Entry
}

// Load opens the archive at path and indexes its central directory.
// No member data is decompressed while indexing.
func Load(path string, opts *Options) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: %w: need an archive path", ErrArchiveUnreadable, errMissingArgument)
	}
	if opts == nil {
		opts = &Options{}
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveUnreadable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory", ErrArchiveUnreadable, path)
	}

	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArchiveUnreadable, err)
	}
	rc.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	idx := &Index{
		path:    path,
		modTime: info.ModTime(),
		rc:      rc,
		entries: make([]*Entry, 0, len(rc.File)),
	}

	for _, f := range rc.File {
		name, isDirRecord, ok := normalizeName(f.Name)
		if !ok {
			if opts.Logf != nil {
				opts.Logf("Skipped: %q->Load: %q (empty or escaping name)\n", path, f.Name)
			}

			continue
		}

		e := &Entry{
			Path:      name,
			Modified:  calendarTime(f.Modified, loc),
			IsDir:     isDirRecord || f.Mode().IsDir(),
			file:      f,
			mustCRC32: opts.MustCRC32,
		}
		if !e.IsDir {
			e.Size = f.UncompressedSize64
		}

		idx.entries = append(idx.entries, e)
	}

	return idx, nil
}

// Path returns the filesystem path of the archive.
func (idx *Index) Path() string {
	return idx.path
}

// ModTime returns the modified time of the archive file itself.
func (idx *Index) ModTime() time.Time {
	return idx.modTime
}

// Entries returns the indexed entries in central directory order.
func (idx *Index) Entries() []*Entry {
	return idx.entries
}

// Close closes the underlying archive file.
func (idx *Index) Close() error {
	return idx.rc.Close() //nolint:wrapcheck
}

// Method returns the compression method of the member.
func (e *Entry) Method() uint16 {
	return e.file.Method
}

// Open returns a new [Stream] positioned at the start of the member data.
// You must ensure that Close() will always be called after use is complete.
func (e *Entry) Open() (*Stream, error) {
	if e.IsDir {
		return nil, fmt.Errorf("%w: %q", errNotRegular, e.Path)
	}

	r, err := e.openReader()
	if err != nil {
		return nil, err
	}

	return &Stream{entry: e, r: r}, nil
}

// ReadAll decompresses the entire member into memory.
func (e *Entry) ReadAll() ([]byte, error) {
	s, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	data, err := io.ReadAll(s)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", e.Path, err)
	}

	return data, nil
}

func (e *Entry) openReader() (io.Reader, error) {
	var r io.Reader
	var err error

	if e.file.Method == zip.Store && !e.mustCRC32 {
		r, err = e.file.OpenRaw()
	} else {
		r, err = e.file.Open()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", e.Path, err)
	}

	return r, nil
}

// normalizeName turns a raw record name into a slash separated path without
// leading slashes, repeated slashes or "." segments. It reports whether the
// record names a directory (trailing slash) and false for names that are
// empty after normalization or that would escape the archive root.
func normalizeName(raw string) (string, bool, bool) {
	raw = strings.ReplaceAll(raw, "\\", "/")
	isDir := strings.HasSuffix(raw, "/")

	segments := make([]string, 0, strings.Count(raw, "/")+1)
	for seg := range strings.SplitSeq(raw, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", isDir, false
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return "", isDir, false
	}

	return strings.Join(segments, "/"), isDir, true
}

// calendarTime re-interprets the calendar fields of t within loc.
func calendarTime(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}
