package access

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/simple-beacon/beacon-go/pkg/log"
	"github.com/simple-beacon/beacon-go/pkg/model"
)

// Send errors.
var (
	ErrNullArgument   = errors.New("null argument")
	ErrNoMemory       = errors.New("no buffer available")
	ErrNotBound       = errors.New("model not bound to app key")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidParam   = errors.New("invalid parameter")
)

// Message is an inbound access message as delivered to a model.
type Message struct {
	// Handle is the receiving model.
	Handle model.Handle

	Opcode Opcode
	Params []byte

	Src         model.Address
	Dst         model.Address
	TTL         uint8
	AppKeyIndex uint16
}

// Handler processes messages delivered to a model.
// A returned error marks the message as rejected; nothing is sent on its behalf.
type Handler interface {
	HandleMessage(msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg *Message) error

// HandleMessage calls f(msg).
func (f HandlerFunc) HandleMessage(msg *Message) error {
	return f(msg)
}

// Sender puts an encoded PDU on a bearer.
type Sender interface {
	Send(pdu []byte) error
}

// Config configures a Layer.
type Config struct {
	// Node holds registrations, addresses and model configuration (required).
	Node *model.Node

	// Logger for operational messages. Nil uses slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives access-layer capture events.
	ProtocolLogger log.Logger

	// Observer is notified of every inbound and outbound message.
	Observer Observer
}

type registration struct {
	opcodes []Opcode
	handler Handler
}

// Layer is the access layer of one node. It registers models, dispatches
// inbound PDUs to them, and addresses replies and publications.
type Layer struct {
	node     *model.Node
	logger   *slog.Logger
	protoLog log.Logger
	observer Observer

	mu      sync.RWMutex
	models  map[model.Handle]*registration
	bearers []Sender

	// rxMu keeps inbound processing strictly one message at a time.
	rxMu sync.Mutex
}

// NewLayer creates an access layer for cfg.Node.
func NewLayer(cfg Config) (*Layer, error) {
	if cfg.Node == nil {
		return nil, fmt.Errorf("%w: node", ErrNullArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	return &Layer{
		node:     cfg.Node,
		logger:   cfg.Logger,
		protoLog: log.OrNoop(cfg.ProtocolLogger),
		observer: cfg.Observer,
		models:   make(map[model.Handle]*registration),
	}, nil
}

// Node returns the node this layer serves.
func (l *Layer) Node() *model.Node {
	return l.node
}

// AddBearer attaches a bearer. Outbound PDUs go to every bearer.
func (l *Layer) AddBearer(b Sender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bearers = append(l.bearers, b)
}

// RemoveBearer detaches a bearer added with AddBearer.
func (l *Layer) RemoveBearer(b Sender) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bearers = slices.DeleteFunc(l.bearers, func(x Sender) bool { return x == b })
}

// RegisterModel adds a model to an element and routes the given opcodes to h.
func (l *Layer) RegisterModel(elementIndex uint16, id model.ID, opcodes []Opcode, h Handler) (model.Handle, error) {
	if h == nil {
		return model.InvalidHandle, fmt.Errorf("%w: handler", ErrNullArgument)
	}
	for _, op := range opcodes {
		if !op.IsVendor() {
			return model.InvalidHandle, fmt.Errorf("%w: opcode %s", ErrInvalidParam, op)
		}
	}

	handle, err := l.node.AddModel(elementIndex, id)
	if err != nil {
		return model.InvalidHandle, err
	}

	l.mu.Lock()
	l.models[handle] = &registration{opcodes: slices.Clone(opcodes), handler: h}
	l.mu.Unlock()

	l.logger.Debug("model registered", "model", id.String(), "element", elementIndex, "handle", handle)
	return handle, nil
}

// Reply sends a message back to the source of req, from the element of the
// model that received it, using the same app key.
func (l *Layer) Reply(req *Message, op Opcode, params []byte) error {
	if req == nil {
		return fmt.Errorf("%w: request", ErrNullArgument)
	}
	if !req.Src.IsUnicast() {
		return l.sendFailed(op, SendReply, fmt.Errorf("%w: reply to %s", ErrInvalidAddress, req.Src))
	}

	src, err := l.sourceAddress(req.Handle)
	if err != nil {
		return l.sendFailed(op, SendReply, err)
	}

	pdu := &PDU{
		Src:         src,
		Dst:         req.Src,
		TTL:         l.node.DefaultTTL(),
		AppKeyIndex: req.AppKeyIndex,
		Opcode:      op,
		Params:      params,
	}
	return l.send(pdu, req.Handle, SendReply)
}

// Publish sends a message to the publish address of model h.
func (l *Layer) Publish(h model.Handle, op Opcode, params []byte) error {
	pub, err := l.node.Publication(h)
	if err != nil {
		return l.sendFailed(op, SendPublish, fmt.Errorf("%w: %w", ErrInvalidParam, err))
	}
	if pub.Address == model.AddressUnassigned {
		return l.sendFailed(op, SendPublish, fmt.Errorf("%w: no publish address", ErrInvalidParam))
	}
	if !l.node.IsBound(h, pub.AppKeyIndex) {
		return l.sendFailed(op, SendPublish, fmt.Errorf("%w: app key %d", ErrNotBound, pub.AppKeyIndex))
	}

	src, err := l.sourceAddress(h)
	if err != nil {
		return l.sendFailed(op, SendPublish, err)
	}

	pdu := &PDU{
		Src:         src,
		Dst:         pub.Address,
		TTL:         pub.TTL,
		AppKeyIndex: pub.AppKeyIndex,
		Opcode:      op,
		Params:      params,
	}
	return l.send(pdu, h, SendPublish)
}

func (l *Layer) sourceAddress(h model.Handle) (model.Address, error) {
	info, err := l.node.Model(h)
	if err != nil {
		return model.AddressUnassigned, fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}
	addr, err := l.node.ElementAddress(info.ElementIndex)
	if err != nil {
		return model.AddressUnassigned, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return addr, nil
}

func (l *Layer) send(pdu *PDU, h model.Handle, kind SendKind) error {
	data, err := pdu.Marshal()
	if err != nil {
		if errors.Is(err, ErrNotVendorOpcode) {
			err = fmt.Errorf("%w: %w", ErrInvalidParam, err)
		}
		return l.sendFailed(pdu.Opcode, kind, err)
	}

	l.mu.RLock()
	bearers := slices.Clone(l.bearers)
	l.mu.RUnlock()

	if len(bearers) == 0 {
		return l.sendFailed(pdu.Opcode, kind, fmt.Errorf("%w: no bearer", ErrNoMemory))
	}

	var errs []error
	for _, b := range bearers {
		if err := b.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	// One accepting bearer is enough to get the message out.
	if len(errs) == len(bearers) {
		return l.sendFailed(pdu.Opcode, kind, fmt.Errorf("%w: %w", ErrNoMemory, errors.Join(errs...)))
	}

	l.logMessage(log.DirectionOut, kindOf(kind), pdu, &h)
	l.observer.OnSend(pdu.Opcode, kind, nil)
	return nil
}

func (l *Layer) sendFailed(op Opcode, kind SendKind, err error) error {
	l.observer.OnSend(op, kind, err)
	return err
}

// Receive processes one inbound PDU. It returns an error when the PDU is
// malformed or a model rejected it; PDUs not addressed to this node are
// dropped silently.
func (l *Layer) Receive(data []byte) error {
	l.rxMu.Lock()
	defer l.rxMu.Unlock()

	pdu, err := UnmarshalPDU(data)
	if err != nil {
		l.observer.OnReceive(Opcode{}, OutcomeMalformed)
		return err
	}

	targets := l.targets(pdu)
	if len(targets) == 0 {
		l.observer.OnReceive(pdu.Opcode, OutcomeIgnored)
		return nil
	}

	l.logMessage(log.DirectionIn, log.MessageKindRequest, pdu, nil)

	var errs []error
	for _, t := range targets {
		msg := &Message{
			Handle:      t.handle,
			Opcode:      pdu.Opcode,
			Params:      pdu.Params,
			Src:         pdu.Src,
			Dst:         pdu.Dst,
			TTL:         pdu.TTL,
			AppKeyIndex: pdu.AppKeyIndex,
		}
		if err := t.handler.HandleMessage(msg); err != nil {
			l.logger.Debug("message rejected", "opcode", pdu.Opcode.String(), "src", pdu.Src.String(), "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		l.observer.OnReceive(pdu.Opcode, OutcomeRejected)
		return errors.Join(errs...)
	}
	l.observer.OnReceive(pdu.Opcode, OutcomeDelivered)
	return nil
}

type target struct {
	handle  model.Handle
	handler Handler
}

// targets resolves the models a PDU is delivered to.
func (l *Layer) targets(pdu *PDU) []target {
	if !l.node.IsProvisioned() {
		return nil
	}
	// Our own transmissions echoed back by a bearer.
	if _, own := l.node.ElementIndex(pdu.Src); own {
		return nil
	}

	var candidates []model.Handle
	switch {
	case pdu.Dst.IsUnicast():
		idx, ok := l.node.ElementIndex(pdu.Dst)
		if !ok {
			return nil
		}
		candidates = l.node.ModelsOnElement(idx)
	case pdu.Dst == model.AddressAllNodes:
		for _, info := range l.node.Models() {
			candidates = append(candidates, info.Handle)
		}
	case pdu.Dst.IsGroup():
		for _, info := range l.node.Models() {
			if slices.Contains(info.Subscriptions, pdu.Dst) {
				candidates = append(candidates, info.Handle)
			}
		}
	default:
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []target
	for _, h := range candidates {
		reg, ok := l.models[h]
		if !ok || !slices.Contains(reg.opcodes, pdu.Opcode) {
			continue
		}
		if !l.node.IsBound(h, pdu.AppKeyIndex) {
			continue
		}
		out = append(out, target{handle: h, handler: reg.handler})
	}
	return out
}

func (l *Layer) logMessage(dir log.Direction, kind log.MessageKind, pdu *PDU, h *model.Handle) {
	ev := &log.MessageEvent{
		Kind:        kind,
		Opcode:      pdu.Opcode.Code,
		CompanyID:   pdu.Opcode.CompanyID,
		Src:         uint16(pdu.Src),
		Dst:         uint16(pdu.Dst),
		TTL:         pdu.TTL,
		AppKeyIndex: pdu.AppKeyIndex,
		Params:      pdu.Params,
	}
	if h != nil {
		mh := uint16(*h)
		ev.ModelHandle = &mh
	}
	l.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		Direction: dir,
		Layer:     log.LayerAccess,
		Category:  log.CategoryMessage,
		NodeUUID:  l.node.UUID().String(),
		Message:   ev,
	})
}

func kindOf(k SendKind) log.MessageKind {
	if k == SendReply {
		return log.MessageKindReply
	}
	return log.MessageKindPublication
}
