package beacon

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/log"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// Model identifiers.
var (
	ServerModelID = model.ID{CompanyID: model.CompanyNordic, ModelID: 0x0000}
	ClientModelID = model.ID{CompanyID: model.CompanyNordic, ModelID: 0x0001}
)

// Engine errors.
var (
	ErrNullArgument        = errors.New("null argument")
	ErrMissingStateHandler = errors.New("state handler incomplete")
	ErrNotConfigured       = errors.New("model not configured")
	ErrUnexpectedMessage   = errors.New("unexpected message for this model")
	ErrInvalidBool         = errors.New("boolean field not 0 or 1")
)

// Transport is what a beacon model needs from the access layer.
type Transport interface {
	RegisterModel(elementIndex uint16, id model.ID, opcodes []access.Opcode, h access.Handler) (model.Handle, error)
	Reply(req *access.Message, op access.Opcode, params []byte) error
	Publish(h model.Handle, op access.Opcode, params []byte) error
}

var _ Transport = (*access.Layer)(nil)

// ServerConfig configures a Server.
type ServerConfig struct {
	// ElementIndex is the element the server is registered on.
	ElementIndex uint16

	// BoolPolicy controls request bytes outside {0, 1} (default: BoolCoerce).
	BoolPolicy BoolPolicy

	// ProtocolLogger receives a model-layer event for every state write.
	ProtocolLogger log.Logger
}

// Server is a Simple Beacon server model instance.
type Server struct {
	transport Transport
	state     StateHandler
	handle    model.Handle
	policy    BoolPolicy
	protoLog  log.Logger
}

// NewServer registers a server model on cfg.ElementIndex.
// On error nothing is registered.
func NewServer(t Transport, state StateHandler, cfg ServerConfig) (*Server, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transport", ErrNullArgument)
	}
	if !usableState(state) {
		return nil, ErrMissingStateHandler
	}

	s := &Server{
		transport: t,
		state:     state,
		policy:    cfg.BoolPolicy,
		protoLog:  log.OrNoop(cfg.ProtocolLogger),
	}

	h, err := t.RegisterModel(cfg.ElementIndex, ServerModelID, vendorOpcodes(wire.ServerOpcodes()), s)
	if err != nil {
		return nil, fmt.Errorf("register beacon server on element %d: %w", cfg.ElementIndex, err)
	}
	s.handle = h
	return s, nil
}

// usableState rejects nil handlers, typed nil pointers and StateFuncs with a
// missing function.
func usableState(state StateHandler) bool {
	switch h := state.(type) {
	case nil:
		return false
	case StateFuncs:
		return h.complete()
	case *StateFuncs:
		return h != nil && h.complete()
	case *Flag:
		return h != nil
	}
	v := reflect.ValueOf(state)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return !v.IsNil()
	}
	return true
}

// Handle returns the transport handle of the server.
func (s *Server) Handle() model.Handle {
	return s.handle
}

// HandleMessage processes one inbound message to completion.
// Malformed and unexpected messages are rejected before the state handler
// is touched.
func (s *Server) HandleMessage(msg *access.Message) error {
	if s == nil || s.transport == nil || s.state == nil {
		return ErrNotConfigured
	}
	if msg == nil {
		return fmt.Errorf("%w: message", ErrNullArgument)
	}

	decoded, err := decodeMessage(msg)
	if err != nil {
		return err
	}

	switch m := decoded.(type) {
	case wire.SetRequest:
		requested, err := s.requested(m.ReportEnable)
		if err != nil {
			return err
		}
		return s.reply(msg, s.write(requested, "set", msg.Src))
	case wire.SetUnreliableRequest:
		requested, err := s.requested(m.ReportEnable)
		if err != nil {
			return err
		}
		s.write(requested, "set-unreliable", msg.Src)
		return nil
	case wire.GetRequest:
		// The Get byte carries no meaning.
		return s.reply(msg, s.state.ReadState())
	case wire.StatusReply, wire.ReportStatus:
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, m.Opcode())
	default:
		return fmt.Errorf("%w: %T", ErrUnexpectedMessage, decoded)
	}
}

// PublishStatus publishes an unsolicited Status carrying value.
func (s *Server) PublishStatus(value bool) error {
	if s == nil || s.transport == nil {
		return ErrNotConfigured
	}
	return s.transport.Publish(s.handle, vendorOpcode(wire.OpcodeStatus), wire.Encode(wire.NewStatus(value)))
}

// PublishReport publishes an unsolicited ReportStatus carrying data verbatim.
func (s *Server) PublishReport(data [wire.ReportLength]byte) error {
	if s == nil || s.transport == nil {
		return ErrNotConfigured
	}
	return s.transport.Publish(s.handle, vendorOpcode(wire.OpcodeReportStatus), wire.Encode(wire.ReportStatus{CustomData: data}))
}

func (s *Server) requested(b uint8) (bool, error) {
	if s.policy == BoolStrict && !wire.IsCanonicalBool(b) {
		return false, fmt.Errorf("%w: 0x%02X", ErrInvalidBool, b)
	}
	return wire.Bool(b), nil
}

func (s *Server) write(requested bool, reason string, src model.Address) bool {
	result := s.state.WriteState(requested)
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionIn,
		Layer:     log.LayerModel,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityBeacon,
			NewState: onOff(result),
			Reason:   fmt.Sprintf("%s from %s, requested %s", reason, src, onOff(requested)),
		},
	})
	return result
}

func (s *Server) reply(req *access.Message, value bool) error {
	if err := s.transport.Reply(req, vendorOpcode(wire.OpcodeStatus), wire.Encode(wire.NewStatus(value))); err != nil {
		return fmt.Errorf("reply status to %s: %w", req.Src, err)
	}
	return nil
}

// decodeMessage maps an access message onto the closed wire message set.
func decodeMessage(msg *access.Message) (wire.Message, error) {
	op := wire.Opcode(msg.Opcode.Code)
	if msg.Opcode.CompanyID != model.CompanyNordic {
		return nil, &wire.DecodeError{Opcode: op, Length: len(msg.Params), Err: wire.ErrUnknownOpcode}
	}
	return wire.Decode(op, msg.Params)
}

func vendorOpcode(op wire.Opcode) access.Opcode {
	return access.Opcode{Code: uint8(op), CompanyID: model.CompanyNordic}
}

func vendorOpcodes(ops []wire.Opcode) []access.Opcode {
	out := make([]access.Opcode, len(ops))
	for i, op := range ops {
		out[i] = vendorOpcode(op)
	}
	return out
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
