// Package rendezvous implements the cyclic barrier the executor and
// every worker synchronize on, three times per test (prep/start/end).
// A small sync.Cond-based cyclic barrier built on the standard library
// (see DESIGN.md for why no third-party barrier fit here — the nearest
// thing in scope, an x86 memory fence for queue visibility, is a
// different primitive entirely).
package rendezvous

import "sync"

// Barrier is a reusable (cyclic) rendezvous point for a fixed number of
// participants. Every participant must call Wait exactly once per
// generation; Wait returns only once all participants have arrived,
// after which the barrier resets for its next use.
type Barrier struct {
	mu        sync.Mutex
	cond      *sync.Cond
	width     int
	count     int
	waitGen   uint64
}

// New creates a Barrier sized for width participants. width is fixed
// for the barrier's lifetime: barrier width is tied to the number of
// fixed plus configured workers for the whole run, and a mid-run
// worker-count change requires building a new Barrier, not resizing
// this one.
func New(width int) *Barrier {
	b := &Barrier{width: width}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Width reports the number of participants this Barrier was built for.
func (b *Barrier) Width() int { return b.width }

// Wait blocks until Width() participants have called Wait in the
// current generation, then releases all of them together.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.waitGen
	b.count++
	if b.count == b.width {
		b.count = 0
		b.waitGen++
		b.cond.Broadcast()
		return
	}

	for gen == b.waitGen {
		b.cond.Wait()
	}
}
