package log

import (
	"fmt"
	"time"
)

// Event is one captured protocol event.
// CBOR encoding uses integer keys to keep capture files small.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// BearerID identifies the bearer or stream connection (UUID for stream peers).
	BearerID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// NodeUUID is the device UUID of the capturing node.
	NodeUUID string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address for stream and serial bearers.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Bearer layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Access and model layers
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates message flow relative to the capturing node.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where an event was captured.
type Layer uint8

const (
	// LayerBearer carries raw PDUs (stream frames, SLIP packets).
	LayerBearer Layer = 0
	// LayerAccess carries parsed access messages.
	LayerAccess Layer = 1
	// LayerModel carries model state changes.
	LayerModel Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerBearer:
		return "BEARER"
	case LayerAccess:
		return "ACCESS"
	case LayerModel:
		return "MODEL"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer parses a layer name as printed by String.
func ParseLayer(s string) (Layer, error) {
	for _, l := range []Layer{LayerBearer, LayerAccess, LayerModel} {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layer %q", s)
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 1
	CategoryError   Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory parses a category name as printed by String.
func ParseCategory(s string) (Category, error) {
	for _, c := range []Category{CategoryMessage, CategoryState, CategoryError} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

// FrameEvent captures a raw PDU on a bearer.
type FrameEvent struct {
	// Size is the frame size in bytes as seen on the bearer.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures an access message.
type MessageEvent struct {
	Kind MessageKind `cbor:"1,keyasint"`

	Opcode    uint8  `cbor:"2,keyasint"`
	CompanyID uint16 `cbor:"3,keyasint"`

	Src         uint16 `cbor:"4,keyasint"`
	Dst         uint16 `cbor:"5,keyasint"`
	TTL         uint8  `cbor:"6,keyasint,omitempty"`
	AppKeyIndex uint16 `cbor:"7,keyasint,omitempty"`

	// Params is the opcode-specific payload.
	Params []byte `cbor:"8,keyasint,omitempty"`

	// ModelHandle is the local model that sent or handled the message.
	ModelHandle *uint16 `cbor:"9,keyasint,omitempty"`
}

// MessageKind distinguishes how a message travelled.
type MessageKind uint8

const (
	// MessageKindRequest is an inbound message delivered to a model.
	MessageKindRequest MessageKind = 0
	// MessageKindReply is addressed to the requester of an earlier message.
	MessageKindReply MessageKind = 1
	// MessageKindPublication is sent to a model's publish address.
	MessageKindPublication MessageKind = 2
)

// String returns the kind name.
func (k MessageKind) String() string {
	switch k {
	case MessageKindRequest:
		return "REQUEST"
	case MessageKindReply:
		return "REPLY"
	case MessageKindPublication:
		return "PUBLICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures bearer and node lifecycle changes.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityBearer StateEntity = 0
	StateEntityNode   StateEntity = 1
	// StateEntityBeacon is the report-enable flag of a beacon server.
	StateEntityBeacon StateEntity = 2
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityBearer:
		return "BEARER"
	case StateEntityNode:
		return "NODE"
	case StateEntityBeacon:
		return "BEACON"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Context describes what was being done.
	Context string `cbor:"3,keyasint,omitempty"`
}
