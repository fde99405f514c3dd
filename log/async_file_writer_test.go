package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.log")
	w := NewAsyncFileWriter(path, 100, 0)
	require.NoError(t, w.Start())
	w.Write([]byte("hello\n"))
	w.Write([]byte("world\n"))
	w.Stop()

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	var rotated string
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "hello.log.") {
			rotated = f.Name()
		}
	}
	require.NotEmpty(t, rotated)
	content, err := os.ReadFile(filepath.Join(dir, rotated))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(content))

	// the bare name is a symlink to the current file
	target, err := os.Readlink(path)
	require.NoError(t, err)
	assert.Equal(t, rotated, filepath.Base(target))
}

func TestWriterStartTwice(t *testing.T) {
	w := NewAsyncFileWriter(filepath.Join(t.TempDir(), "twice.log"), 10, 0)
	require.NoError(t, w.Start())
	assert.Error(t, w.Start())
	w.Stop()
}

func TestNextRotation(t *testing.T) {
	tcs := []struct {
		now   time.Time
		hours uint
		want  time.Time
	}{
		{time.Date(1980, 1, 6, 15, 34, 0, 0, time.UTC), 3, time.Date(1980, 1, 6, 18, 0, 0, 0, time.UTC)},
		{time.Date(1980, 1, 6, 23, 59, 0, 0, time.UTC), 1, time.Date(1980, 1, 7, 0, 0, 0, 0, time.UTC)},
		{time.Date(1980, 1, 6, 22, 15, 0, 0, time.UTC), 2, time.Date(1980, 1, 7, 0, 0, 0, 0, time.UTC)},
		{time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC), 1, time.Date(1980, 1, 6, 1, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, nextRotation(tc.now, tc.hours))
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	w := NewAsyncFileWriter(filepath.Join(t.TempDir(), "full.log"), 1, 0)
	// Not started, so nothing drains the queue.
	w.Write([]byte("a\n"))
	w.Write([]byte("b\n"))
	assert.Equal(t, uint64(1), w.Dropped())
	w.Stop()
}
