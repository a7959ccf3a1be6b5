package memframe

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(op Op, kind CounterKind, a, b, value uint32) []byte {
	header := byte(kind)
	if op == OpSet {
		header |= 0x80
	}
	buf := []byte{header}

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, a)
	buf = append(buf, payload...)
	if kind == CounterGrant {
		bPayload := make([]byte, 4)
		binary.LittleEndian.PutUint32(bPayload, b)
		buf = append(buf, bPayload...)
	}

	valueBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(valueBytes, value)
	return append(buf, valueBytes...)
}

func TestDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		op   Op
		kind CounterKind
		a, b uint32
		val  uint32
	}{
		{"add PCB", OpAdd, CounterPCB, 7, 0, 100},
		{"set UpcallQueue", OpSet, CounterUpcallQueue, 3, 0, 0},
		{"add GrantPointerTable", OpAdd, CounterGrantPointerTable, 1, 0, 42},
		{"set Grant", OpSet, CounterGrant, 5, 9, 1000},
		{"add CustomGrant", OpAdd, CounterCustomGrant, 2, 0, 55},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := encodeFrame(tc.op, tc.kind, tc.a, tc.b, tc.val)
			now := time.Now()

			frame, n, ok := Decode(buf, now)
			require.True(t, ok)
			assert.Equal(t, len(buf), n)
			assert.Equal(t, tc.op, frame.Op)
			assert.Equal(t, tc.kind, frame.Counter.Kind)
			assert.Equal(t, tc.a, frame.Counter.A)
			if tc.kind == CounterGrant {
				assert.Equal(t, tc.b, frame.Counter.B)
			}
			assert.Equal(t, tc.val, frame.Value)
			assert.True(t, frame.Time.Equal(now))
		})
	}
}

func TestDecodeTooShort(t *testing.T) {
	buf := encodeFrame(OpAdd, CounterPCB, 1, 0, 1)
	_, _, ok := Decode(buf[:len(buf)-1], time.Now())
	assert.False(t, ok)
}

func TestDecodeUnrecognizedTag(t *testing.T) {
	buf := []byte{0x7F, 0, 0, 0, 0, 0, 0, 0, 0}
	_, _, ok := Decode(buf, time.Now())
	assert.False(t, ok)
}

func TestStreamFeedAcrossChunks(t *testing.T) {
	frame1 := encodeFrame(OpAdd, CounterPCB, 1, 0, 10)
	frame2 := encodeFrame(OpSet, CounterGrant, 2, 3, 20)
	combined := append(append([]byte{}, frame1...), frame2...)

	var s Stream

	// Feed the first frame plus a partial second frame.
	split := len(frame1) + 2
	frames := s.Feed(combined[:split], time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, CounterPCB, frames[0].Counter.Kind)
	assert.Equal(t, 2, s.Pending())

	frames = s.Feed(combined[split:], time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, CounterGrant, frames[0].Counter.Kind)
	assert.Equal(t, uint32(2), frames[0].Counter.A)
	assert.Equal(t, uint32(3), frames[0].Counter.B)
	assert.Equal(t, 0, s.Pending())
}

func TestStreamResyncsPastMalformedByte(t *testing.T) {
	good := encodeFrame(OpAdd, CounterPCB, 9, 0, 99)
	garbage := []byte{0x7F} // unrecognized tag (127)
	combined := append(append([]byte{}, garbage...), good...)

	var s Stream
	frames := s.Feed(combined, time.Now())
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(9), frames[0].Counter.A)
	assert.Equal(t, uint32(99), frames[0].Value)
	assert.Equal(t, 0, s.Pending())
}
