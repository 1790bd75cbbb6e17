// Package logging implements the handling of logs.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05"

// RingBuffer keeps the most recent log lines in memory, for serving them on
// the dashboard, while also mirroring every line to an output stream.
type RingBuffer struct {
	mu    sync.Mutex
	out   io.Writer
	buf   []string
	index int
	full  bool
	size  int

	verbose atomic.Bool
	now     func() time.Time
}

// NewRingBuffer returns a pointer to a new [RingBuffer].
// A size below one is raised to one, so that Lines() always works.
func NewRingBuffer(size int, out io.Writer) *RingBuffer {
	size = max(1, size)
	if out == nil {
		out = io.Discard
	}

	return &RingBuffer{
		out:  out,
		buf:  make([]string, size),
		size: size,
		now:  time.Now,
	}
}

// Size returns the size of the ring-buffer.
func (b *RingBuffer) Size() int {
	return b.size
}

// SetVerbose controls if messages of Debugf are recorded.
func (b *RingBuffer) SetVerbose(v bool) {
	b.verbose.Store(v)
}

// Verbose returns if messages of Debugf are recorded.
func (b *RingBuffer) Verbose() bool {
	return b.verbose.Load()
}

// Lines returns a copy of the ring-buffer contents, oldest line first.
func (b *RingBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		out := make([]string, b.index)
		copy(out, b.buf[:b.index])

		return out
	}

	out := make([]string, b.size)
	copy(out, b.buf[b.index:])
	copy(out[b.size-b.index:], b.buf[:b.index])

	return out
}

// Reset returns the ring-buffer to zero state.
func (b *RingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = make([]string, b.size)
	b.index = 0
	b.full = false
}

// Printf records a formatted message and also writes it to the stream.
func (b *RingBuffer) Printf(format string, args ...any) {
	b.record(fmt.Sprintf(format, args...))
}

// Println records a message and also writes it to the stream.
func (b *RingBuffer) Println(args ...any) {
	b.record(fmt.Sprintln(args...))
}

// Debugf is Printf, but only when verbose logging is enabled.
func (b *RingBuffer) Debugf(format string, args ...any) {
	if !b.verbose.Load() {
		return
	}

	b.record(fmt.Sprintf(format, args...))
}

func (b *RingBuffer) record(msg string) {
	line := b.now().Format(timestampFormat) + " " + strings.TrimRight(msg, "\n")

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.index] = line
	b.index = (b.index + 1) % b.size
	if b.index == 0 {
		b.full = true
	}

	fmt.Fprintln(b.out, line)
}
