// Package worker provides the embeddable goroutine-lifecycle helper used by
// every long-running activity in the messenger (sniffer, reliability timer,
// announcer). It is a small stand-in for the teacher's core/worker.Worker,
// whose source is not part of this retrieval but whose call sites
// (client2/connection.go's c.Go(c.connectWorker) / c.HaltCh(), disk.go's
// StateWriter) establish the contract reproduced here.
package worker

import "sync"

// Worker embeds into any type that owns one or more background goroutines.
// Call Go to start a goroutine; the goroutine should select on HaltCh() and
// return promptly when it fires. Call Halt to request shutdown and Wait to
// block until every goroutine started via Go has returned.
type Worker struct {
	initOnce sync.Once
	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
}

// HaltCh returns the channel that is closed when Halt is called.
func (w *Worker) HaltCh() chan struct{} {
	w.init()
	return w.haltCh
}

// Go starts fn in a new goroutine tracked by Wait.
func (w *Worker) Go(fn func()) {
	w.init()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Halt closes the halt channel, signalling every goroutine started via Go to
// stop. Safe to call more than once.
func (w *Worker) Halt() {
	w.init()
	w.haltOnce.Do(func() { close(w.haltCh) })
}

// Wait blocks until every goroutine started via Go has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) init() {
	w.initOnce.Do(func() {
		w.haltCh = make(chan struct{})
	})
}
