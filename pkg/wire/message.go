package wire

// Message is one decoded Simple Beacon message.
//
// The set of implementations is closed: SetRequest, SetUnreliableRequest,
// GetRequest, StatusReply and ReportStatus.
type Message interface {
	// Opcode returns the opcode the message is sent with.
	Opcode() Opcode

	sealed()
}

// SetRequest asks the server to write the flag and answer with a Status.
//
// Layout: [report_enable]
type SetRequest struct {
	ReportEnable uint8
}

// SetUnreliableRequest has the same layout as SetRequest but is never answered.
//
// Layout: [report_enable]
type SetUnreliableRequest struct {
	ReportEnable uint8
}

// GetRequest asks the server for its current flag.
//
// ReportEnable is kept for wire compatibility. Receivers must not interpret it.
//
// Layout: [report_enable]
type GetRequest struct {
	ReportEnable uint8
}

// StatusReply carries the current flag, either as an answer or as a publication.
//
// Layout: [report_enable]
type StatusReply struct {
	ReportEnable uint8
}

// ReportStatus carries 16 bytes of opaque application data.
//
// Layout: [custom_data x16]
type ReportStatus struct {
	CustomData [ReportLength]byte
}

func (SetRequest) Opcode() Opcode           { return OpcodeSet }
func (SetUnreliableRequest) Opcode() Opcode { return OpcodeSetUnreliable }
func (GetRequest) Opcode() Opcode           { return OpcodeGet }
func (StatusReply) Opcode() Opcode          { return OpcodeStatus }
func (ReportStatus) Opcode() Opcode         { return OpcodeReportStatus }

func (SetRequest) sealed()           {}
func (SetUnreliableRequest) sealed() {}
func (GetRequest) sealed()           {}
func (StatusReply) sealed()          {}
func (ReportStatus) sealed()         {}

// Requested returns the requested flag with non-zero read as true.
func (m SetRequest) Requested() bool { return Bool(m.ReportEnable) }

// Requested returns the requested flag with non-zero read as true.
func (m SetUnreliableRequest) Requested() bool { return Bool(m.ReportEnable) }

// Value returns the reported flag with non-zero read as true.
func (m StatusReply) Value() bool { return Bool(m.ReportEnable) }

// NewStatus builds a StatusReply for the given flag.
func NewStatus(value bool) StatusReply {
	return StatusReply{ReportEnable: EncodeBool(value)}
}

// NewReport builds a ReportStatus from up to 16 bytes of data.
// Shorter input is zero padded, longer input is truncated.
func NewReport(data []byte) ReportStatus {
	var r ReportStatus
	copy(r.CustomData[:], data)
	return r
}

// Bool reads a raw boolean byte: any non-zero value is true.
func Bool(b uint8) bool {
	return b != 0
}

// EncodeBool returns the canonical byte for a boolean.
func EncodeBool(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// IsCanonicalBool reports whether b is 0 or 1.
func IsCanonicalBool(b uint8) bool {
	return b <= 1
}
