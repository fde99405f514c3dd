// Package resultdb persists per-method analysis summaries in a pebble
// key-value store so later runs and other tools can query them without
// re-analysing.
package resultdb

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/jflow-project/jflow/log"
	"github.com/jflow-project/jflow/metrics"
)

var (
	// ErrNotFound is returned when a key is absent.
	ErrNotFound = errors.New("not found")

	errLocked = errors.New("database locked by another process")
)

var (
	getTimer    = metrics.NewRegisteredTimer("resultdb/get/time", nil)
	putTimer    = metrics.NewRegisteredTimer("resultdb/put/time", nil)
	writesMeter = metrics.NewRegisteredMeter("resultdb/writes", nil)
)

// Config selects the database location and options.
type Config struct {
	Path     string
	Cache    int  // MB, zero keeps the pebble default
	ReadOnly bool `toml:",omitempty"`
}

// Database is a pebble store guarded by a file lock so that two processes
// never write the same directory.
type Database struct {
	fn   string
	db   *pebble.DB
	lock *flock.Flock

	closeOnce sync.Once
	log       log.Logger
}

// Open opens or creates the database described by config.
func Open(config Config) (*Database, error) {
	return OpenCustom(config.Path, config.ReadOnly, func(options *pebble.Options) {
		if config.Cache > 0 {
			options.Cache = pebble.NewCache(int64(config.Cache) * 1024 * 1024)
		}
	})
}

// OpenCustom opens the database, letting the caller modify the pebble
// options before use.
func OpenCustom(file string, readonly bool, customize func(options *pebble.Options)) (*Database, error) {
	if file == "" {
		return nil, errors.New("resultdb: empty path")
	}
	if err := os.MkdirAll(file, 0755); err != nil {
		return nil, err
	}
	// pebble owns LOCK, so the process lock uses FLOCK.
	lock := flock.New(filepath.Join(file, "FLOCK"))
	tryLock := lock.TryLock
	if readonly {
		tryLock = lock.TryRLock
	}
	if locked, err := tryLock(); err != nil {
		return nil, err
	} else if !locked {
		return nil, errors.Wrap(errLocked, file)
	}

	options := configureOptions(customize)
	options.ReadOnly = readonly
	logger := log.New("database", file)

	db, err := pebble.Open(file, options)
	if options.Cache != nil {
		// pebble holds its own reference once opened.
		options.Cache.Unref()
	}
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	logger.Debug("Opened result database", "readonly", readonly)
	return &Database{fn: file, db: db, lock: lock, log: logger}, nil
}

func configureOptions(customizeFn func(*pebble.Options)) *pebble.Options {
	options := &pebble.Options{}
	if customizeFn != nil {
		customizeFn(options)
	}
	return options
}

// Close flushes pending data, closes the store and releases the lock.
func (db *Database) Close() error {
	var err error
	db.closeOnce.Do(func() {
		err = db.db.Close()
		if uerr := db.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
		db.log.Debug("Closed result database", "err", err)
	})
	return err
}

// Path returns the database directory.
func (db *Database) Path() string { return db.fn }

// Has reports whether key is present.
func (db *Database) Has(key []byte) (bool, error) {
	_, closer, err := db.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (db *Database) Get(key []byte) ([]byte, error) {
	defer metrics.Since(getTimer, time.Now())

	dat, closer, err := db.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	ret := make([]byte, len(dat))
	copy(ret, dat)
	return ret, closer.Close()
}

// Put stores value under key.
func (db *Database) Put(key []byte, value []byte) error {
	defer metrics.Since(putTimer, time.Now())
	writesMeter.Mark(1)
	return db.db.Set(key, value, pebble.Sync)
}

// Delete removes key.
func (db *Database) Delete(key []byte) error {
	return db.db.Delete(key, pebble.Sync)
}

// NewBatch creates a write-only batch that is applied atomically on Write.
func (db *Database) NewBatch() *Batch {
	return &Batch{db: db.db, b: db.db.NewBatch()}
}

// NewIterator iterates in key order over the keys with prefix, starting at
// prefix+start.
func (db *Database) NewIterator(prefix []byte, start []byte) (*Iterator, error) {
	it, err := db.db.NewIter(prefixIterOptions(prefix, start))
	if err != nil {
		return nil, errors.Wrap(err, "resultdb: new iterator")
	}
	return &Iterator{it: it}, nil
}

func prefixIterOptions(prefix []byte, start []byte) *pebble.IterOptions {
	var limit []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		c := prefix[i]
		if c < 0xff {
			limit = make([]byte, i+1)
			copy(limit, prefix)
			limit[i] = c + 1
			break
		}
	}
	lower := make([]byte, 0, len(prefix)+len(start))
	lower = append(append(lower, prefix...), start...)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: limit}
}

// Iterator walks a key range. Key and Value are only valid until the next
// call to Next.
type Iterator struct {
	it      *pebble.Iterator
	started bool
}

// Next moves to the next entry, reporting whether there is one.
func (it *Iterator) Next() bool {
	if !it.started {
		it.started = true
		return it.it.First()
	}
	return it.it.Next()
}

func (it *Iterator) Key() []byte   { return it.it.Key() }
func (it *Iterator) Value() []byte { return it.it.Value() }
func (it *Iterator) Error() error  { return it.it.Error() }

// Release closes the iterator.
func (it *Iterator) Release() error { return it.it.Close() }

// Batch buffers writes until Write. It is not safe for concurrent use.
type Batch struct {
	db   *pebble.DB
	b    *pebble.Batch
	size int
}

// Put queues a write.
func (b *Batch) Put(key, value []byte) error {
	if err := b.b.Set(key, value, nil); err != nil {
		return err
	}
	b.size += len(value)
	return nil
}

// Delete queues a removal.
func (b *Batch) Delete(key []byte) error {
	if err := b.b.Delete(key, nil); err != nil {
		return err
	}
	b.size += len(key)
	return nil
}

// ValueSize returns the amount of data queued.
func (b *Batch) ValueSize() int { return b.size }

// Write applies the batch.
func (b *Batch) Write() error {
	defer metrics.Since(putTimer, time.Now())
	writesMeter.Mark(int64(b.b.Count()))
	return b.db.Apply(b.b, pebble.Sync)
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() {
	b.b.Reset()
	b.size = 0
}
