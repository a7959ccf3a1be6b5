package rendezvous

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierReleasesAllParticipantsTogether(t *testing.T) {
	const width = 5
	b := New(width)

	var arrived atomic.Int32
	var wg sync.WaitGroup
	wg.Add(width)

	released := make(chan struct{}, width)
	for i := 0; i < width; i++ {
		go func() {
			defer wg.Done()
			arrived.Add(1)
			b.Wait()
			released <- struct{}{}
		}()
	}

	wg.Wait()
	close(released)

	count := 0
	for range released {
		count++
	}
	assert.Equal(t, width, count)
	assert.Equal(t, int32(width), arrived.Load())
}

func TestBarrierIsCyclic(t *testing.T) {
	const width = 3
	b := New(width)

	for gen := 0; gen < 3; gen++ {
		var wg sync.WaitGroup
		wg.Add(width)
		for i := 0; i < width; i++ {
			go func() {
				defer wg.Done()
				b.Wait()
			}()
		}
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("generation %d did not complete", gen)
		}
	}
}

func TestBarrierWidth(t *testing.T) {
	b := New(7)
	require.Equal(t, 7, b.Width())
}

func TestBarrierDoesNotReleaseEarly(t *testing.T) {
	const width = 2
	b := New(width)

	releasedFirst := make(chan struct{})
	go func() {
		b.Wait()
		close(releasedFirst)
	}()

	select {
	case <-releasedFirst:
		t.Fatal("first participant was released before the second arrived")
	case <-time.After(50 * time.Millisecond):
	}

	b.Wait()

	select {
	case <-releasedFirst:
	case <-time.After(time.Second):
		t.Fatal("first participant was never released after the second arrived")
	}
}
