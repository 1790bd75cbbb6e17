package zipfs

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/desertwitch/zipmount/internal/archive"
	"github.com/desertwitch/zipmount/internal/ziptree"
)

// Read returns up to size bytes of a file, starting at offset. Reading past
// the end returns fewer bytes (down to none) and is never an error. How the
// data is obtained depends on the [Policy] in the [Options].
func (fsys *FS) Read(path string, size int, offset int64) ([]byte, error) {
	node, key, ok := fsys.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}

	switch node.Kind {
	case ziptree.KindFile:
	case ziptree.KindDir:
		return nil, fmt.Errorf("%w: %q", ErrIsDir, key)
	default:
		panic(fmt.Sprintf("unhandled node kind %v at %q", node.Kind, key))
	}

	if size < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: read %q (size %d, offset %d)", ErrInvalidArgument, key, size, offset)
	}

	m := fsys.newMetric(true)
	defer m.Done()

	var data []byte
	var err error

	switch fsys.Options.Policy {
	case PolicyContents:
		data, err = fsys.readContents(key, node.Entry, size, offset)
	case PolicyStream:
		data, err = fsys.readStream(key, node.Entry, size, offset)
	default:
		data, err = fsys.readUncached(node.Entry, size, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	m.bytes = len(data)

	return data, nil
}

// readUncached opens a fresh stream, reads the range and closes it again.
func (fsys *FS) readUncached(e *archive.Entry, size int, offset int64) ([]byte, error) {
	if remaining(e, offset) == 0 {
		return []byte{}, nil
	}

	s, err := fsys.openStream(e)
	if err != nil {
		return nil, err
	}
	defer fsys.closeStream(s)

	return readRange(s, size, offset)
}

// readContents serves the range from the fully decompressed entry,
// which is kept in the single-slot cache until another path is read.
func (fsys *FS) readContents(key string, e *archive.Entry, size int, offset int64) ([]byte, error) {
	if limit := fsys.Options.ContentsLimit; limit > 0 && e.Size > limit {
		fsys.Metrics.TotalCacheBypasses.Add(1)

		return fsys.readUncached(e, size, offset)
	}

	data, ok := fsys.cache.contents(key)
	if ok {
		fsys.Metrics.TotalCacheHits.Add(1)
	} else {
		fsys.Metrics.TotalCacheMisses.Add(1)

		var err error
		data, err = fsys.readAll(e)
		if err != nil {
			return nil, err
		}
		fsys.cache.storeContents(key, data)
	}

	return sliceRange(data, size, offset), nil
}

// readStream serves the range from the stream kept in the single-slot cache,
// which is (re)positioned for every read of the same path.
func (fsys *FS) readStream(key string, e *archive.Entry, size int, offset int64) ([]byte, error) {
	s, ok := fsys.cache.stream(key)
	if ok {
		fsys.Metrics.TotalCacheHits.Add(1)
	} else {
		fsys.Metrics.TotalCacheMisses.Add(1)

		var err error
		s, err = fsys.openStream(e)
		if err != nil {
			return nil, err
		}
		fsys.cache.storeStream(key, s)
	}

	rewinds := s.Reopens()

	data, err := readRange(s, size, offset)

	fsys.Metrics.TotalStreamRewinds.Add(s.Reopens() - rewinds)

	if err != nil {
		fsys.cache.clear() // never reuse a broken stream

		return nil, err
	}

	return data, nil
}

func (fsys *FS) readAll(e *archive.Entry) ([]byte, error) {
	s, err := fsys.openStream(e)
	if err != nil {
		return nil, err
	}
	defer fsys.closeStream(s)

	data, err := io.ReadAll(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}

	return data, nil
}

func (fsys *FS) openStream(e *archive.Entry) (*archive.Stream, error) {
	s, err := e.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	fsys.Metrics.OpenStreams.Add(1)
	fsys.Metrics.TotalOpenedStreams.Add(1)

	return s, nil
}

func (fsys *FS) closeStream(s *archive.Stream) {
	fsys.Metrics.OpenStreams.Add(-1)
	fsys.Metrics.TotalClosedStreams.Add(1)

	if err := s.Close(); err != nil {
		fsys.rbuf.Printf("Error: %q->Close->%q: %v\n", fsys.index.Path(), s.Entry().Path, err)
	}
}

// readRange positions the stream at offset and reads up to size bytes.
func readRange(s *archive.Stream, size int, offset int64) ([]byte, error) {
	n := min(int64(size), remaining(s.Entry(), offset))
	if n <= 0 {
		return []byte{}, nil
	}

	if err := s.SeekTo(offset); err != nil {
		return nil, err //nolint:wrapcheck
	}

	buf := make([]byte, n)

	read, err := io.ReadFull(s, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	return buf[:read], nil
}

// sliceRange returns a copy of up to size bytes of data, starting at offset.
func sliceRange(data []byte, size int, offset int64) []byte {
	if offset >= int64(len(data)) {
		return []byte{}
	}

	end := min(offset+int64(size), int64(len(data)))

	return slices.Clone(data[offset:end])
}

// remaining returns the amount of bytes of an entry past the offset.
func remaining(e *archive.Entry, offset int64) int64 {
	if offset >= int64(e.Size) { //nolint:gosec
		return 0
	}

	return int64(e.Size) - offset //nolint:gosec
}
