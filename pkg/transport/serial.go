package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/simple-beacon/beacon-go/pkg/log"
)

// DefaultBaud is the default serial line speed.
const DefaultBaud = 115200

// SerialConfig configures a SerialBearer.
type SerialConfig struct {
	// Port is the device name, e.g. /dev/ttyACM0 or COM3.
	Port string

	// Baud defaults to 115200.
	Baud int

	// MaxFrameSize bounds inbound packets (default: 512).
	MaxFrameSize int

	// OnReceive is called with every inbound PDU (required).
	OnReceive ReceiveFunc

	// Logger for operational messages. Nil uses slog.Default().
	Logger *slog.Logger

	// ProtocolLogger captures frames.
	ProtocolLogger log.Logger
}

func (c *SerialConfig) applyDefaults() error {
	if c.OnReceive == nil {
		return fmt.Errorf("OnReceive is required")
	}
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// SerialBearer carries SLIP-framed PDUs over a serial line.
type SerialBearer struct {
	config SerialConfig
	port   io.ReadWriteCloser
	reader *SlipReader
	writer *SlipWriter

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// OpenSerial opens the configured serial device and starts reading.
func OpenSerial(config SerialConfig) (*SerialBearer, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(&serial.Config{
		Name: config.Port,
		Baud: config.Baud,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", config.Port, err)
	}
	return NewSerialBearer(port, config)
}

// NewSerialBearer runs the bearer over an already open port.
func NewSerialBearer(port io.ReadWriteCloser, config SerialConfig) (*SerialBearer, error) {
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	id := config.Port
	if id == "" {
		id = "serial"
	}

	b := &SerialBearer{
		config: config,
		port:   port,
		reader: NewSlipReader(port, config.MaxFrameSize),
		writer: NewSlipWriter(port),
		done:   make(chan struct{}),
	}
	protoLog := log.OrNoop(config.ProtocolLogger)
	b.reader.SetLogger(protoLog, id)
	b.writer.SetLogger(protoLog, id)
	logSerialState(protoLog, id, "", "OPEN", "")

	go b.readLoop(protoLog, id)
	return b, nil
}

// Send writes one SLIP-framed PDU.
func (b *SerialBearer) Send(pdu []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.writer.WritePacket(pdu)
}

// Close closes the port and waits for the reader to stop.
func (b *SerialBearer) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		err = b.port.Close()
	})
	<-b.done
	return err
}

// Done is closed when the reader has stopped.
func (b *SerialBearer) Done() <-chan struct{} {
	return b.done
}

func (b *SerialBearer) readLoop(protoLog log.Logger, id string) {
	defer close(b.done)

	var reason string
	for {
		pdu, err := b.reader.ReadPacket()
		if err == nil {
			b.config.OnReceive(pdu)
			continue
		}
		if errors.Is(err, ErrSlipEscape) || errors.Is(err, ErrMessageTooLarge) {
			b.config.Logger.Warn("dropped serial packet", "port", id, "error", err)
			continue
		}
		if !b.closed.Load() && !errors.Is(err, io.EOF) {
			reason = err.Error()
			b.config.Logger.Error("serial read failed", "port", id, "error", err)
		}
		break
	}
	logSerialState(protoLog, id, "OPEN", "CLOSED", reason)
}

func logSerialState(protoLog log.Logger, id, oldState, newState, reason string) {
	protoLog.Log(log.Event{
		Timestamp: time.Now(),
		BearerID:  id,
		Layer:     log.LayerBearer,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityBearer,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

var _ Bearer = (*SerialBearer)(nil)
