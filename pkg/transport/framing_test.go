package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/simple-beacon/beacon-go/pkg/log"
)

// recordingLogger collects capture events.
type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingLogger) snapshot() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.events...)
}

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "set request",
			payload: []byte{0x00, 0x01, 0x00, 0x10, 0x07, 0x00, 0x00, 0xC1, 0x59, 0x00, 0x01},
		},
		{
			name:    "max size message",
			payload: bytes.Repeat([]byte("y"), DefaultMaxFrameSize),
		},
		{
			name:    "single byte",
			payload: []byte{0x42},
		},
		{
			name:    "binary data",
			payload: []byte{0x00, 0xFF, 0x7F, 0x80},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}

			expectedSize := LengthPrefixSize + len(tt.payload)
			if buf.Len() != expectedSize {
				t.Errorf("frame size = %d, want %d", buf.Len(), expectedSize)
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameWriterEmptyMessage(t *testing.T) {
	writer := NewFrameWriter(new(bytes.Buffer))

	if err := writer.WriteFrame([]byte{}); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty for nil, got %v", err)
	}
}

func TestFrameWriterMessageTooLarge(t *testing.T) {
	writer := NewFrameWriterWithMaxSize(new(bytes.Buffer), 100)

	err := writer.WriteFrame(bytes.Repeat([]byte("x"), 101))
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestFrameReaderErrors(t *testing.T) {
	prefix := func(n uint32) []byte {
		var b [LengthPrefixSize]byte
		binary.BigEndian.PutUint32(b[:], n)
		return b[:]
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"clean eof", nil, io.EOF},
		{"short prefix", []byte{0x00, 0x00}, ErrFrameTruncated},
		{"zero length", prefix(0), ErrMessageEmpty},
		{"too large", append(prefix(1000), bytes.Repeat([]byte("x"), 1000)...), ErrMessageTooLarge},
		{"short payload", append(prefix(10), 0x01, 0x02), ErrFrameTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewFrameReaderWithMaxSize(bytes.NewReader(tt.data), 100)
			_, err := reader.ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFrameLogging(t *testing.T) {
	buf := new(bytes.Buffer)
	rec := &recordingLogger{}

	framer := NewFramer(buf, DefaultMaxFrameSize)
	framer.SetLogger(rec, "conn-1")

	if err := framer.WriteFrame([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := rec.snapshot()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for i, dir := range []log.Direction{log.DirectionOut, log.DirectionIn} {
		ev := events[i]
		if ev.Direction != dir {
			t.Errorf("event %d direction = %v, want %v", i, ev.Direction, dir)
		}
		if ev.BearerID != "conn-1" || ev.Layer != log.LayerBearer || ev.Category != log.CategoryMessage {
			t.Errorf("event %d header = %+v", i, ev)
		}
		if ev.Frame == nil || ev.Frame.Size != LengthPrefixSize+3 {
			t.Errorf("event %d frame = %+v", i, ev.Frame)
		}
	}
}

func TestFrameEventTruncates(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, MaxLogFrameDataSize+10)
	ev := frameEvent("b", data, 2, log.DirectionIn)

	if !ev.Frame.Truncated {
		t.Error("expected truncated frame")
	}
	if len(ev.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("data len = %d, want %d", len(ev.Frame.Data), MaxLogFrameDataSize)
	}
	if ev.Frame.Size != len(data)+2 {
		t.Errorf("size = %d, want %d", ev.Frame.Size, len(data)+2)
	}
}
