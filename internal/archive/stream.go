package archive

import (
	"errors"
	"fmt"
	"io"
)

var _ io.ReadCloser = (*Stream)(nil)

// Stream is a decompressing reader over one archive member, which keeps
// track of its position. Depending on compression and options, seeking is
// implemented either by actual seeking (type assertion) or by reading bytes
// to [io.Discard]. Seeking backwards on a non-seekable member reopens it.
//
// It is not thread-safe, but the same [Entry] can be used to establish
// another [Stream] if the member needs to be read from elsewhere.
type Stream struct {
	entry   *Entry
	r       io.Reader
	pos     int64
	reopens int64
}

// Read facilitates reading of a fixed amount of bytes.
// It returns the number of bytes that were read and an error.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.pos += int64(n)

	return n, err //nolint:wrapcheck
}

// SeekTo moves the stream to the given absolute offset. An offset beyond
// the end of the member leaves the stream at the end, which is no error.
func (s *Stream) SeekTo(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative offset %d", offset)
	}
	if offset == s.pos {
		return nil
	}

	if seeker, ok := s.r.(io.Seeker); ok {
		n, err := seeker.Seek(offset, io.SeekStart)
		s.pos = n
		if err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}

		return nil
	}

	if offset < s.pos {
		if err := s.rewind(); err != nil {
			return err
		}
	}

	n, err := io.CopyN(io.Discard, s.r, offset-s.pos)
	s.pos += n
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to discard: %w", err)
	}

	return nil
}

// rewind closes the current reader and reopens the member at its start.
func (s *Stream) rewind() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close for rewind: %w", err)
	}

	r, err := s.entry.openReader()
	if err != nil {
		return fmt.Errorf("failed to rewind: %w", err)
	}

	s.r = r
	s.pos = 0
	s.reopens++

	return nil
}

// Entry returns the [Entry] the stream is reading from.
func (s *Stream) Entry() *Entry {
	return s.entry
}

// Position is the current offset of the stream within the member data.
func (s *Stream) Position() int64 {
	return s.pos
}

// Reopens is the amount of times the member was reopened for rewinding.
func (s *Stream) Reopens() int64 {
	return s.reopens
}

// Seekable reports if the stream can seek without decompressing.
func (s *Stream) Seekable() bool {
	_, ok := s.r.(io.Seeker)

	return ok
}

// Close facilitates the closing of the stream after use.
// In case the underlying [io.Reader] is a [io.SectionReader],
// it is a no-op and will return nil without closing anything.
func (s *Stream) Close() error {
	if closer, ok := s.r.(io.Closer); ok {
		return closer.Close() //nolint:wrapcheck
	}

	return nil
}
