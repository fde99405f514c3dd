package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// nextRotation returns the start of the hour rotateHours after now.
func nextRotation(now time.Time, rotateHours uint) time.Time {
	return now.Truncate(time.Hour).Add(time.Duration(rotateHours) * time.Hour)
}

// AsyncFileWriter queues log lines in memory and writes them from a single
// goroutine into a file named after the hour it was opened,
// "<path>.2006-01-02_15". The configured path is kept as a symlink to the
// live file. With rotateHours > 0 a new file is started every rotateHours
// hours, on the hour.
type AsyncFileWriter struct {
	path        string
	rotateHours uint
	fd          *os.File

	lines   chan []byte
	quit    chan struct{}
	done    chan struct{}
	running atomic.Bool
	dropped atomic.Uint64
}

// NewAsyncFileWriter creates a writer buffering up to maxLines messages.
func NewAsyncFileWriter(path string, maxLines int64, rotateHours uint) *AsyncFileWriter {
	abs, err := filepath.Abs(path)
	if err != nil {
		panic(fmt.Sprintf("log file path %q: %v", path, err))
	}
	return &AsyncFileWriter{
		path:        abs,
		rotateHours: rotateHours,
		lines:       make(chan []byte, maxLines),
	}
}

// open starts the file for the current hour and points the symlink at it.
func (w *AsyncFileWriter) open(now time.Time) error {
	name := w.path + "." + now.Format("2006-01-02_15")
	fd, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(w.path); err == nil {
		if err := os.Remove(w.path); err != nil {
			fd.Close()
			return err
		}
	}
	if err := os.Symlink(name, w.path); err != nil {
		fd.Close()
		return err
	}
	w.fd = fd
	return nil
}

func (w *AsyncFileWriter) close() error {
	if w.fd == nil {
		return nil
	}
	err := w.fd.Sync()
	if cerr := w.fd.Close(); err == nil {
		err = cerr
	}
	w.fd = nil
	return err
}

// Start opens the file and begins draining the queue.
func (w *AsyncFileWriter) Start() error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("log writer already started")
	}
	now := time.Now()
	if err := w.open(now); err != nil {
		w.running.Store(false)
		return err
	}
	w.quit, w.done = make(chan struct{}), make(chan struct{})

	var rotate <-chan time.Time
	var timer *time.Timer
	if w.rotateHours > 0 {
		timer = time.NewTimer(time.Until(nextRotation(now, w.rotateHours)))
		rotate = timer.C
	}
	go func() {
		defer close(w.done)
		defer w.running.Store(false)
		if timer != nil {
			defer timer.Stop()
		}
		for {
			select {
			case line := <-w.lines:
				w.fd.Write(line)
			case now := <-rotate:
				if err := w.close(); err != nil {
					fmt.Fprintf(os.Stderr, "log rotation: close: %v\n", err)
				}
				if err := w.open(now); err != nil {
					fmt.Fprintf(os.Stderr, "log rotation: open: %v\n", err)
				}
				timer.Reset(time.Until(nextRotation(now, w.rotateHours)))
			case <-w.quit:
				w.drain()
				w.close()
				return
			}
		}
	}()
	return nil
}

func (w *AsyncFileWriter) drain() {
	for {
		select {
		case line := <-w.lines:
			if w.fd != nil {
				w.fd.Write(line)
			}
		default:
			return
		}
	}
}

// Stop writes out the queued lines, closes the file and waits for the
// writer goroutine to exit.
func (w *AsyncFileWriter) Stop() {
	if w.quit == nil {
		return
	}
	close(w.quit)
	<-w.done
	w.quit = nil
}

// Write queues a copy of msg. Lines are dropped while the queue is full.
func (w *AsyncFileWriter) Write(msg []byte) (int, error) {
	line := make([]byte, len(msg))
	copy(line, msg)
	select {
	case w.lines <- line:
	default:
		w.dropped.Add(1)
	}
	return len(msg), nil
}

// Dropped returns how many lines were discarded because the queue was full.
func (w *AsyncFileWriter) Dropped() uint64 { return w.dropped.Load() }
