// Package trace models a captured serial event and reconstructs the
// sequence of them from a worker's raw read buffer and read schedule.
// Grounded on original_source/common/src/trace.rs.
package trace

import (
	"time"
)

// Kind distinguishes which tracing channel produced an Event: the
// primary serial-trace channel, or one of the extra tracing channels a
// test configures on top of it.
type Kind int

const (
	// KindRaw is the primary serial-trace channel's output.
	KindRaw Kind = iota
	// KindExtra is an additional-tracing-worker channel's output.
	KindExtra
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindExtra:
		return "extra"
	default:
		return "?"
	}
}

// Event is one captured chunk of serial data paired with its arrival
// time relative to the start of the test.
type Event struct {
	offset time.Duration
	data   []byte
}

// NewEvent constructs an Event whose offset from t0 is clamped to zero
// when the recorded arrival time precedes t0 (a defensive clamp kept
// from the original, which can observe slightly-before-t0 arrivals due
// to scheduling jitter around the start rendezvous).
func NewEvent(t0, arrived time.Time, data []byte) Event {
	offset := arrived.Sub(t0)
	if offset < 0 {
		offset = 0
	}
	return Event{offset: offset, data: data}
}

// Len returns the number of bytes captured by the event.
func (e Event) Len() int { return len(e.data) }

// Data returns the captured bytes.
func (e Event) Data() []byte { return e.data }

// Offset returns the event's arrival time relative to test start.
func (e Event) Offset() time.Duration { return e.offset }

// ReadChunk records one read the tracing worker performed: how many
// bytes it returned and when the read completed.
type ReadChunk struct {
	Arrived time.Time
	Bytes   int
}

// Reconstruct slices a single append-only buffer, filled by successive
// reads during a test, back into the individual Events those reads
// produced. The worker records arrival time and byte count per read
// rather than per byte to avoid per-byte timestamping overhead; this
// function undoes that compaction after the test ends.
func Reconstruct(t0 time.Time, buf []byte, schedule []ReadChunk) []Event {
	events := make([]Event, 0, len(schedule))
	pos := 0
	for _, chunk := range schedule {
		if chunk.Bytes <= 0 {
			continue
		}
		end := pos + chunk.Bytes
		if end > len(buf) {
			end = len(buf)
		}
		if pos >= end {
			break
		}
		data := make([]byte, end-pos)
		copy(data, buf[pos:end])
		events = append(events, NewEvent(t0, chunk.Arrived, data))
		pos = end
	}
	return events
}
