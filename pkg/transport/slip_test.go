package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeSLIP(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"plain", []byte{0x01, 0x02}, []byte{0xC0, 0x01, 0x02, 0xC0}},
		{"end byte", []byte{0xC0}, []byte{0xC0, 0xDB, 0xDC, 0xC0}},
		{"esc byte", []byte{0xDB}, []byte{0xC0, 0xDB, 0xDD, 0xC0}},
		{"vendor set opcode", []byte{0xC1, 0x59, 0x00, 0x01}, []byte{0xC0, 0xC1, 0x59, 0x00, 0x01, 0xC0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeSLIP(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeSLIP(% X) = % X, want % X", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlipRoundTrip(t *testing.T) {
	packets := [][]byte{
		{0xC0, 0xDB, 0xC0, 0xDB},
		{0x00, 0x10, 0x00, 0x01, 0x07, 0x00, 0x00, 0xC4, 0x59, 0x00, 0x01},
		bytes.Repeat([]byte{0xDB}, 200),
	}

	buf := new(bytes.Buffer)
	w := NewSlipWriter(buf)
	for _, p := range packets {
		if err := w.WritePacket(p); err != nil {
			t.Fatalf("WritePacket failed: %v", err)
		}
	}

	r := NewSlipReader(buf, DefaultMaxFrameSize)
	for i, want := range packets {
		got, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: ReadPacket failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("packet %d = % X, want % X", i, got, want)
		}
	}
	if _, err := r.ReadPacket(); err != io.EOF {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestSlipWriterEmpty(t *testing.T) {
	w := NewSlipWriter(new(bytes.Buffer))
	if err := w.WritePacket(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
}

func TestSlipReaderResync(t *testing.T) {
	// Bad escape, then a valid packet.
	stream := []byte{0xC0, 0x01, 0xDB, 0x07, 0x02, 0xC0, 0xC0, 0x0A, 0x0B, 0xC0}
	r := NewSlipReader(bytes.NewReader(stream), DefaultMaxFrameSize)

	if _, err := r.ReadPacket(); !errors.Is(err, ErrSlipEscape) {
		t.Fatalf("expected ErrSlipEscape, got %v", err)
	}
	got, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0x0A, 0x0B}) {
		t.Errorf("got % X, want 0A 0B", got)
	}
}

func TestSlipReaderTooLarge(t *testing.T) {
	stream := append([]byte{0xC0}, bytes.Repeat([]byte{0x01}, 20)...)
	stream = append(stream, 0xC0, 0x05, 0xC0)
	r := NewSlipReader(bytes.NewReader(stream), 16)

	if _, err := r.ReadPacket(); !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}
	got, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0x05}) {
		t.Errorf("got % X, want 05", got)
	}
}

func TestSlipReaderTruncated(t *testing.T) {
	r := NewSlipReader(bytes.NewReader([]byte{0xC0, 0x01, 0x02}), DefaultMaxFrameSize)
	if _, err := r.ReadPacket(); !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}
}
