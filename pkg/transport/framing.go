package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/simple-beacon/beacon-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the stream length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize fits the largest access PDU with room to spare.
	DefaultMaxFrameSize = 512

	// MaxLogFrameDataSize caps the bytes copied into a capture event.
	MaxLogFrameDataSize = 512
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameLogger attaches capture logging to a reader or writer.
type frameLogger struct {
	logger   log.Logger
	bearerID string
	overhead int
}

func (fl *frameLogger) SetLogger(logger log.Logger, bearerID string) {
	fl.logger = logger
	fl.bearerID = bearerID
}

func (fl *frameLogger) logFrame(data []byte, dir log.Direction) {
	if fl.logger == nil {
		return
	}
	fl.logger.Log(frameEvent(fl.bearerID, data, fl.overhead, dir))
}

// frameEvent builds a bearer-layer capture event for one PDU.
func frameEvent(bearerID string, data []byte, overhead int, dir log.Direction) log.Event {
	frame := &log.FrameEvent{Size: overhead + len(data), Data: data}
	if len(data) > MaxLogFrameDataSize {
		frame.Data = data[:MaxLogFrameDataSize]
		frame.Truncated = true
	}
	return log.Event{
		Timestamp: time.Now(),
		BearerID:  bearerID,
		Direction: dir,
		Layer:     log.LayerBearer,
		Category:  log.CategoryMessage,
		Frame:     frame,
	}
}

// FrameWriter writes length-prefixed frames: 4-byte big-endian length, then payload.
type FrameWriter struct {
	frameLogger
	w       io.Writer
	maxSize uint32
	mu      sync.Mutex
}

// NewFrameWriter creates a frame writer with DefaultMaxFrameSize.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, DefaultMaxFrameSize)
}

// NewFrameWriterWithMaxSize creates a frame writer with a custom limit.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint32) *FrameWriter {
	return &FrameWriter{
		frameLogger: frameLogger{overhead: LengthPrefixSize},
		w:           w,
		maxSize:     maxSize,
	}
}

// WriteFrame writes one frame. Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > fw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxSize)
	}

	// Prefix and payload go out in a single write so frames never interleave
	// on the wire.
	buf := make([]byte, LengthPrefixSize, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	buf = append(buf, data...)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	fw.logFrame(data, log.DirectionOut)
	return nil
}

// FrameReader reads length-prefixed frames.
type FrameReader struct {
	frameLogger
	r         io.Reader
	maxSize   uint32
	lengthBuf [LengthPrefixSize]byte
}

// NewFrameReader creates a frame reader with DefaultMaxFrameSize.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxFrameSize)
}

// NewFrameReaderWithMaxSize creates a frame reader with a custom limit.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{
		frameLogger: frameLogger{overhead: LengthPrefixSize},
		r:           r,
		maxSize:     maxSize,
	}
}

// ReadFrame reads one frame and returns its payload.
// A clean end of stream between frames returns io.EOF.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, fr.maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}

	fr.logFrame(payload, log.DirectionIn)
	return payload, nil
}

// Framer combines frame reading and writing on one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer with the given frame limit.
func NewFramer(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithMaxSize(rw, maxSize),
		FrameWriter: NewFrameWriterWithMaxSize(rw, maxSize),
	}
}

// SetLogger enables capture logging in both directions.
func (f *Framer) SetLogger(logger log.Logger, bearerID string) {
	f.FrameReader.SetLogger(logger, bearerID)
	f.FrameWriter.SetLogger(logger, bearerID)
}
