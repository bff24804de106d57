package wire

// Opcode identifies a Simple Beacon message kind.
type Opcode uint8

const (
	// OpcodeSet is the acknowledged Set request.
	OpcodeSet Opcode = 0xC1

	// OpcodeGet requests the current state.
	OpcodeGet Opcode = 0xC2

	// OpcodeSetUnreliable is the unacknowledged Set request.
	OpcodeSetUnreliable Opcode = 0xC3

	// OpcodeStatus carries the current state.
	OpcodeStatus Opcode = 0xC4

	// OpcodeReportStatus carries an opaque 16-byte application report.
	OpcodeReportStatus Opcode = 0xC5
)

// ReportLength is the size of the ReportStatus payload.
const ReportLength = 16

// boolLength is the size of every single-byte message.
const boolLength = 1

// String returns the opcode name.
func (o Opcode) String() string {
	switch o {
	case OpcodeSet:
		return "Set"
	case OpcodeGet:
		return "Get"
	case OpcodeSetUnreliable:
		return "SetUnreliable"
	case OpcodeStatus:
		return "Status"
	case OpcodeReportStatus:
		return "ReportStatus"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the opcode belongs to the Simple Beacon opcode set.
func (o Opcode) IsValid() bool {
	return o >= OpcodeSet && o <= OpcodeReportStatus
}

// PayloadLength returns the exact payload size for the opcode.
// It returns -1 for opcodes outside the set.
func (o Opcode) PayloadLength() int {
	switch o {
	case OpcodeSet, OpcodeGet, OpcodeSetUnreliable, OpcodeStatus:
		return boolLength
	case OpcodeReportStatus:
		return ReportLength
	default:
		return -1
	}
}

// IsRequest returns true for opcodes a client sends to a server.
func (o Opcode) IsRequest() bool {
	return o == OpcodeSet || o == OpcodeGet || o == OpcodeSetUnreliable
}

// ServerOpcodes lists the opcodes a server receives.
func ServerOpcodes() []Opcode {
	return []Opcode{OpcodeSet, OpcodeGet, OpcodeSetUnreliable}
}

// ClientOpcodes lists the opcodes a client receives.
func ClientOpcodes() []Opcode {
	return []Opcode{OpcodeStatus, OpcodeReportStatus}
}
