package access

// SendKind distinguishes replies from publications.
type SendKind uint8

const (
	SendReply SendKind = iota
	SendPublish
)

// String returns the kind name.
func (k SendKind) String() string {
	switch k {
	case SendReply:
		return "reply"
	case SendPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// Outcome is what happened to an inbound PDU.
type Outcome uint8

const (
	// OutcomeDelivered means at least one model handled the message.
	OutcomeDelivered Outcome = iota
	// OutcomeRejected means a model returned an error.
	OutcomeRejected
	// OutcomeIgnored means no local model was addressed.
	OutcomeIgnored
	// OutcomeMalformed means the PDU could not be parsed.
	OutcomeMalformed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Observer is notified of traffic through a Layer.
// Calls happen on the sending or receiving goroutine and must not block.
type Observer interface {
	OnReceive(op Opcode, outcome Outcome)
	OnSend(op Opcode, kind SendKind, err error)
}

// NoopObserver ignores everything.
type NoopObserver struct{}

func (NoopObserver) OnReceive(Opcode, Outcome)      {}
func (NoopObserver) OnSend(Opcode, SendKind, error) {}
