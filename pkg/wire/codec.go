package wire

import (
	"errors"
	"fmt"
)

// Decode errors.
var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrLengthMismatch = errors.New("payload length mismatch")
)

// DecodeError describes a rejected message.
type DecodeError struct {
	Opcode Opcode
	Length int
	Err    error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if errors.Is(e.Err, ErrLengthMismatch) {
		return fmt.Sprintf("decode %s (0x%02X): %v: got %d, want %d",
			e.Opcode, uint8(e.Opcode), e.Err, e.Length, e.Opcode.PayloadLength())
	}
	return fmt.Sprintf("decode opcode 0x%02X: %v", uint8(e.Opcode), e.Err)
}

// Unwrap returns the sentinel error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses a payload received with the given opcode.
// The payload length must match the opcode exactly.
func Decode(op Opcode, payload []byte) (Message, error) {
	want := op.PayloadLength()
	if want < 0 {
		return nil, &DecodeError{Opcode: op, Length: len(payload), Err: ErrUnknownOpcode}
	}
	if len(payload) != want {
		return nil, &DecodeError{Opcode: op, Length: len(payload), Err: ErrLengthMismatch}
	}

	switch op {
	case OpcodeSet:
		return SetRequest{ReportEnable: payload[0]}, nil
	case OpcodeGet:
		return GetRequest{ReportEnable: payload[0]}, nil
	case OpcodeSetUnreliable:
		return SetUnreliableRequest{ReportEnable: payload[0]}, nil
	case OpcodeStatus:
		return StatusReply{ReportEnable: payload[0]}, nil
	default: // OpcodeReportStatus
		var r ReportStatus
		copy(r.CustomData[:], payload)
		return r, nil
	}
}

// Encode serializes a message payload. The opcode is not included.
func Encode(msg Message) []byte {
	switch m := msg.(type) {
	case SetRequest:
		return []byte{m.ReportEnable}
	case SetUnreliableRequest:
		return []byte{m.ReportEnable}
	case GetRequest:
		return []byte{m.ReportEnable}
	case StatusReply:
		return []byte{m.ReportEnable}
	case ReportStatus:
		out := make([]byte, ReportLength)
		copy(out, m.CustomData[:])
		return out
	default:
		// Unreachable: Message is sealed.
		panic(fmt.Sprintf("wire: unsupported message %T", msg))
	}
}
