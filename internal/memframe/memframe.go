// Package memframe decodes the DUT's memory-accounting wire format: a
// stream of frames, each one bit of operation, seven bits of counter
// tag, a tag-dependent little-endian counter payload, and a trailing
// little-endian u32 value. Grounded on
// original_source/common/src/mem.rs, with nom's bit-level combinators
// replaced by a hand-rolled decoder in the same manual encoding/binary
// struct marshal/unmarshal style used elsewhere in this module.
package memframe

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Op is the operation a frame applies to the named counter.
type Op int

const (
	// OpAdd increments the counter by the frame's value.
	OpAdd Op = iota
	// OpSet assigns the counter to the frame's value.
	OpSet
)

func (o Op) String() string {
	if o == OpSet {
		return "set"
	}
	return "add"
}

// CounterKind tags which counter a frame addresses.
type CounterKind int

const (
	CounterPCB CounterKind = iota + 1
	CounterUpcallQueue
	CounterGrantPointerTable
	CounterGrant
	CounterCustomGrant
)

func (k CounterKind) String() string {
	switch k {
	case CounterPCB:
		return "PCB"
	case CounterUpcallQueue:
		return "UpcallQueue"
	case CounterGrantPointerTable:
		return "GrantPointerTable"
	case CounterGrant:
		return "Grant"
	case CounterCustomGrant:
		return "CustomGrant"
	default:
		return "?"
	}
}

// payloadLen returns the counter-payload byte length for a tag, or 0 if
// the tag is not a recognized counter kind.
func payloadLen(kind CounterKind) int {
	switch kind {
	case CounterPCB, CounterUpcallQueue, CounterGrantPointerTable, CounterCustomGrant:
		return 4
	case CounterGrant:
		return 8
	default:
		return 0
	}
}

// CounterID identifies the specific counter instance a frame addresses.
// Grant is the only kind carrying two u32s (a process identifier and a
// grant index); every other kind carries one.
type CounterID struct {
	Kind CounterKind
	A    uint32
	B    uint32 // only meaningful when Kind == CounterGrant
}

func (c CounterID) String() string {
	if c.Kind == CounterGrant {
		return fmt.Sprintf("Grant(%d, %d)", c.A, c.B)
	}
	return fmt.Sprintf("%s(%d)", c.Kind, c.A)
}

// Frame is one decoded memory-accounting event.
type Frame struct {
	Time    time.Time
	Op      Op
	Counter CounterID
	Value   uint32
}

func (f Frame) String() string {
	return fmt.Sprintf("operation: %s, counter: %-35s, value: %d", f.Op, f.Counter, f.Value)
}

const headerSize = 1

// frameSize returns the total byte length of a frame given its counter
// kind, or 0 if the kind is unrecognized.
func frameSize(kind CounterKind) int {
	pl := payloadLen(kind)
	if pl == 0 {
		return 0
	}
	return headerSize + pl + 4 // +4 for the trailing value
}

// Decode attempts to decode one frame from the front of buf, stamped
// with the given arrival time. It returns the decoded frame, the number
// of bytes consumed, and ok=false if buf does not begin with a
// recognizable frame (either too short, or an unrecognized counter tag
// in its header).
func Decode(buf []byte, at time.Time) (Frame, int, bool) {
	if len(buf) < headerSize {
		return Frame{}, 0, false
	}

	header := buf[0]
	op := OpAdd
	if header&0x80 != 0 {
		op = OpSet
	}
	kind := CounterKind(header & 0x7f)

	size := frameSize(kind)
	if size == 0 || len(buf) < size {
		return Frame{}, 0, false
	}

	payload := buf[headerSize : headerSize+payloadLen(kind)]
	counter := CounterID{Kind: kind}
	if kind == CounterGrant {
		counter.A = binary.LittleEndian.Uint32(payload[0:4])
		counter.B = binary.LittleEndian.Uint32(payload[4:8])
	} else {
		counter.A = binary.LittleEndian.Uint32(payload[0:4])
	}

	value := binary.LittleEndian.Uint32(buf[size-4 : size])

	return Frame{Time: at, Op: op, Counter: counter, Value: value}, size, true
}

// Stream incrementally decodes frames from an accumulating buffer. Feed
// appends newly-read bytes and drains every complete frame currently
// available; a malformed header at the front of the buffer is skipped
// one byte at a time (best-effort resync) rather than stalling the
// stream permanently.
type Stream struct {
	buf []byte
}

// Feed appends newly-arrived bytes, stamped with their arrival time,
// and returns every frame that can now be fully decoded.
func (s *Stream) Feed(data []byte, at time.Time) []Frame {
	s.buf = append(s.buf, data...)

	var frames []Frame
	for len(s.buf) > 0 {
		frame, n, ok := Decode(s.buf, at)
		if ok {
			frames = append(frames, frame)
			s.buf = s.buf[n:]
			continue
		}

		// Either too short to tell yet, or genuinely malformed.
		if len(s.buf) < headerSize {
			break
		}
		kind := CounterKind(s.buf[0] & 0x7f)
		if frameSize(kind) == 0 {
			// Unrecognized tag: resync by dropping the bad header byte.
			s.buf = s.buf[1:]
			continue
		}
		// Recognized tag but not enough bytes buffered yet; wait for more.
		break
	}

	return frames
}

// Pending returns the number of undecoded bytes currently buffered.
func (s *Stream) Pending() int { return len(s.buf) }
