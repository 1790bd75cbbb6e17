// Package testutil provides ZIP fixtures for the tests of other packages.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// Member describes one record of a test archive.
// Paths ending with a slash are written as directory records.
type Member struct {
	Path    string
	ModTime time.Time
	Content []byte // optional, only for files (can be nil)
	Method  uint16 // defaults to [zip.Store]
}

// CreateZip writes an archive with the given members into dir and
// returns the full path to the created archive.
func CreateZip(tb testing.TB, dir string, name string, members []Member) string {
	tb.Helper()

	zipPath := filepath.Join(dir, name)

	f, err := os.Create(zipPath)
	require.NoError(tb, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	for _, m := range members {
		header := &zip.FileHeader{
			Name:     m.Path,
			Method:   m.Method,
			Modified: m.ModTime,
		}

		if strings.HasSuffix(m.Path, "/") {
			header.Method = zip.Store
			header.SetMode(os.ModeDir | 0o755)
		} else {
			header.SetMode(0o644)
		}

		w, err := zw.CreateHeader(header)
		require.NoError(tb, err)

		if len(m.Content) > 0 && !strings.HasSuffix(m.Path, "/") {
			_, err = w.Write(m.Content)
			require.NoError(tb, err)
		}
	}

	require.NoError(tb, zw.Close())
	require.NoError(tb, f.Close())

	return zipPath
}

// Pattern returns n bytes of a repeating, position-dependent pattern,
// so that any misplaced slice of it is detected by comparisons.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((i*7 + i/251) % 256)
	}

	return b
}
