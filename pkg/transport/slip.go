package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/simple-beacon/beacon-go/pkg/log"
)

// SLIP special bytes (RFC 1055).
const (
	slipEnd    byte = 0xC0
	slipEsc    byte = 0xDB
	slipEscEnd byte = 0xDC
	slipEscEsc byte = 0xDD
)

// SLIP errors.
var (
	ErrSlipEscape = errors.New("invalid slip escape sequence")
)

// EncodeSLIP frames a packet: END, escaped payload, END.
func EncodeSLIP(data []byte) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, slipEnd)
	for _, b := range data {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, slipEnd)
}

// SlipWriter writes SLIP-framed packets.
type SlipWriter struct {
	frameLogger
	w  io.Writer
	mu sync.Mutex
}

// NewSlipWriter creates a SLIP writer.
func NewSlipWriter(w io.Writer) *SlipWriter {
	return &SlipWriter{frameLogger: frameLogger{overhead: 2}, w: w}
}

// WritePacket writes one packet. Safe for concurrent use.
func (sw *SlipWriter) WritePacket(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := sw.w.Write(EncodeSLIP(data)); err != nil {
		return fmt.Errorf("write slip packet: %w", err)
	}
	sw.logFrame(data, log.DirectionOut)
	return nil
}

// SlipReader reads SLIP-framed packets. Empty packets between
// back-to-back END bytes are skipped.
type SlipReader struct {
	frameLogger
	r       *bufio.Reader
	maxSize int
}

// NewSlipReader creates a SLIP reader with the given packet limit.
func NewSlipReader(r io.Reader, maxSize int) *SlipReader {
	return &SlipReader{
		frameLogger: frameLogger{overhead: 2},
		r:           bufio.NewReader(r),
		maxSize:     maxSize,
	}
}

// ReadPacket returns the next packet. A malformed or oversized packet is
// reported once and the reader resynchronises on the next END.
func (sr *SlipReader) ReadPacket() ([]byte, error) {
	var (
		pkt     []byte
		esc     bool
		discard error
	)
	for {
		b, err := sr.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(pkt) > 0 {
				return nil, ErrFrameTruncated
			}
			return nil, err
		}

		switch {
		case b == slipEnd:
			if discard != nil {
				return nil, discard
			}
			if esc {
				return nil, ErrSlipEscape
			}
			if len(pkt) == 0 {
				continue
			}
			sr.logFrame(pkt, log.DirectionIn)
			return pkt, nil
		case discard != nil:
			// Skip to the next END.
		case esc:
			esc = false
			switch b {
			case slipEscEnd:
				pkt = append(pkt, slipEnd)
			case slipEscEsc:
				pkt = append(pkt, slipEsc)
			default:
				discard = fmt.Errorf("%w: 0xDB 0x%02X", ErrSlipEscape, b)
			}
		case b == slipEsc:
			esc = true
		default:
			pkt = append(pkt, b)
		}

		if discard == nil && len(pkt) > sr.maxSize {
			discard = fmt.Errorf("%w: more than %d bytes", ErrMessageTooLarge, sr.maxSize)
		}
	}
}
