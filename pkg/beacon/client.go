package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// Client errors.
var (
	ErrBusy    = errors.New("reliable transaction already in progress")
	ErrTimeout = errors.New("no status received")
)

// Client defaults.
const (
	DefaultRetryInterval = 500 * time.Millisecond
	DefaultTimeout       = 5 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// ElementIndex is the element the client is registered on.
	ElementIndex uint16

	// RetryInterval between retransmissions of a reliable request (default: 500ms).
	RetryInterval time.Duration

	// Timeout for a reliable request (default: 5s).
	Timeout time.Duration

	// OnStatus receives Status messages that do not answer a pending request.
	OnStatus func(src model.Address, value bool)

	// OnReport receives ReportStatus messages.
	OnReport func(src model.Address, data [wire.ReportLength]byte)

	// Logger for debug output. Nil uses slog.Default().
	Logger *slog.Logger
}

// Client is a Simple Beacon client model instance. Requests go to the
// client's publish address.
type Client struct {
	transport Transport
	handle    model.Handle
	config    ClientConfig
	logger    *slog.Logger

	mu      sync.Mutex
	pending chan bool
	peer    model.Address
}

// nodeTransport is implemented by transports that expose the node
// configuration, such as access.Layer.
type nodeTransport interface {
	Node() *model.Node
}

// NewClient registers a client model on cfg.ElementIndex.
func NewClient(t Transport, cfg ClientConfig) (*Client, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: transport", ErrNullArgument)
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		transport: t,
		config:    cfg,
		logger:    cfg.Logger,
	}

	h, err := t.RegisterModel(cfg.ElementIndex, ClientModelID, vendorOpcodes(wire.ClientOpcodes()), c)
	if err != nil {
		return nil, fmt.Errorf("register beacon client on element %d: %w", cfg.ElementIndex, err)
	}
	c.handle = h
	return c, nil
}

// Handle returns the transport handle of the client.
func (c *Client) Handle() model.Handle {
	return c.handle
}

// Set requests the flag be written and returns the value the server reports.
func (c *Client) Set(ctx context.Context, on bool) (bool, error) {
	params := wire.Encode(wire.SetRequest{ReportEnable: wire.EncodeBool(on)})
	return c.transact(ctx, vendorOpcode(wire.OpcodeSet), params)
}

// Get returns the value the server reports.
func (c *Client) Get(ctx context.Context) (bool, error) {
	params := wire.Encode(wire.GetRequest{})
	return c.transact(ctx, vendorOpcode(wire.OpcodeGet), params)
}

// SetUnreliable requests the flag be written without waiting for an answer.
func (c *Client) SetUnreliable(on bool) error {
	params := wire.Encode(wire.SetUnreliableRequest{ReportEnable: wire.EncodeBool(on)})
	return c.transport.Publish(c.handle, vendorOpcode(wire.OpcodeSetUnreliable), params)
}

// transact publishes a request and retransmits it until a Status arrives.
// With a unicast publish address only a Status from that address answers it.
func (c *Client) transact(ctx context.Context, op access.Opcode, params []byte) (bool, error) {
	ch, err := c.begin()
	if err != nil {
		return false, err
	}
	defer c.end()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if err := c.transport.Publish(c.handle, op, params); err != nil {
		return false, err
	}

	ticker := time.NewTicker(c.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case v := <-ch:
			return v, nil
		case <-ticker.C:
			c.logger.Debug("retransmitting", "opcode", op.String())
			if err := c.transport.Publish(c.handle, op, params); err != nil {
				return false, err
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return false, ErrTimeout
			}
			return false, ctx.Err()
		}
	}
}

func (c *Client) begin() (chan bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return nil, ErrBusy
	}
	c.pending = make(chan bool, 1)
	c.peer = c.publishTarget()
	return c.pending, nil
}

func (c *Client) end() {
	c.mu.Lock()
	c.pending = nil
	c.peer = model.AddressUnassigned
	c.mu.Unlock()
}

// publishTarget returns the unicast publish address, or AddressUnassigned
// when it is unknown or not unicast.
func (c *Client) publishTarget() model.Address {
	nt, ok := c.transport.(nodeTransport)
	if !ok || nt.Node() == nil {
		return model.AddressUnassigned
	}
	pub, err := nt.Node().Publication(c.handle)
	if err != nil || !pub.Address.IsUnicast() {
		return model.AddressUnassigned
	}
	return pub.Address
}

// HandleMessage processes Status and ReportStatus messages.
func (c *Client) HandleMessage(msg *access.Message) error {
	if c == nil || c.transport == nil {
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
	case wire.StatusReply:
		if c.complete(msg.Src, m.Value()) {
			return nil
		}
		if c.config.OnStatus != nil {
			c.config.OnStatus(msg.Src, m.Value())
		}
		return nil
	case wire.ReportStatus:
		if c.config.OnReport != nil {
			c.config.OnReport(msg.Src, m.CustomData)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, decoded.Opcode())
	}
}

// complete hands a Status to the pending transaction, if any.
func (c *Client) complete(src model.Address, value bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return false
	}
	if c.peer != model.AddressUnassigned && src != c.peer {
		return false
	}
	select {
	case c.pending <- value:
	default:
		// Retransmissions may produce several answers; the first one wins.
	}
	return true
}
