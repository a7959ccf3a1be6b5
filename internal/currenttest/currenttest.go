// Package currenttest holds the single Test the executor is currently
// running, shared with every worker behind a readers-writer lock: the
// executor writes it once before R(prep); every worker reads it once
// between R(prep) and R(start). Grounded on
// original_source/common/src/testbed.rs's `Arc<RwLock<Option<Test>>>`.
package currenttest

import (
	"sync"

	"github.com/mdclyburn/flexbed/internal/testdef"
)

// Holder is the shared current-test slot.
type Holder struct {
	mu   sync.RWMutex
	test *testdef.Test
}

// Set publishes the test the next round of workers should run, or nil
// to signal that no further tests remain (the executor's termination
// protocol: clear current_test, then cross R(prep) one final time).
func (h *Holder) Set(t *testdef.Test) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.test = t
}

// Get returns the currently published test, or nil if none.
func (h *Holder) Get() *testdef.Test {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.test
}
