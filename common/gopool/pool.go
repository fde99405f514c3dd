// Package gopool keeps one shared goroutine pool for batch work such as
// analysing many methods at once.
package gopool

import (
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/jflow-project/jflow/log"
)

var (
	defaultPool, _ = ants.NewPool(ants.DefaultAntsPoolSize, ants.WithExpiryDuration(10*time.Second))

	// minTasksPerThread keeps tiny batches from fanning out.
	minTasksPerThread = 5
)

// Submit runs task on a pooled goroutine.
func Submit(task func()) error {
	return defaultPool.Submit(task)
}

// Running returns the number of the currently running goroutines.
func Running() int {
	return defaultPool.Running()
}

// Cap returns the capacity of the shared pool.
func Cap() int {
	return defaultPool.Cap()
}

// Free returns the available goroutines to work.
func Free() int {
	return defaultPool.Free()
}

// Release closes the shared pool. Submit fails until Reboot is called.
func Release() {
	defaultPool.Release()
}

// Reboot reopens a released pool.
func Reboot() {
	defaultPool.Reboot()
}

// Threads sizes a batch of the given number of tasks: one worker per
// minTasksPerThread tasks, at least one and at most one per CPU.
func Threads(tasks int) int {
	threads := tasks / minTasksPerThread
	if threads > runtime.NumCPU() {
		threads = runtime.NumCPU()
	} else if threads == 0 {
		threads = 1
	}
	return threads
}

// Run calls fn(i) for every i in [0, n) on up to workers pooled goroutines
// and waits for all calls to return. A non-positive workers sizes the batch
// with Threads. Work that cannot be scheduled on the pool runs on the
// calling goroutine.
func Run(n, workers int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if workers <= 0 {
		workers = Threads(n)
	}
	if workers > n {
		workers = n
	}
	var (
		wg   sync.WaitGroup
		next = make(chan int, n)
	)
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)

	work := func() {
		defer wg.Done()
		for i := range next {
			fn(i)
		}
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		if err := Submit(work); err != nil {
			log.Debug("Worker pool unavailable, running inline", "err", err)
			work()
		}
	}
	wg.Wait()
}
