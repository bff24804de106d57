package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/simple-beacon/beacon-go/internal/logging"
	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/beacon"
	"github.com/simple-beacon/beacon-go/pkg/connection"
	"github.com/simple-beacon/beacon-go/pkg/discovery"
	"github.com/simple-beacon/beacon-go/pkg/log"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/transport"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// ErrNoTarget is returned by commands that send requests without a target.
var ErrNoTarget = errors.New("no target address")

// Session is a one-element node hosting a beacon client model.
type Session struct {
	config   *Config
	logger   *slog.Logger
	protoLog log.Logger
	capture  *log.FileLogger

	node   *model.Node
	layer  *access.Layer
	client *beacon.Client

	bearers []transport.Bearer

	outMu sync.Mutex
	out   io.Writer
}

// NewSession builds the client node. Unsolicited messages are printed to out.
func NewSession(cfg *Config, logger *slog.Logger, out io.Writer) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		config:   cfg,
		logger:   logger,
		protoLog: log.NewSlogAdapter(logger),
		out:      out,
		node:     model.NewNode(model.NodeConfig{}),
	}
	if cfg.Capture != "" {
		s.capture = log.NewWriterLogger(logging.RotatingWriter(cfg.Capture, 0, 0))
		s.protoLog = log.NewMultiLogger(s.capture, s.protoLog)
	}

	var err error
	s.layer, err = access.NewLayer(access.Config{
		Node:           s.node,
		Logger:         logger,
		ProtocolLogger: s.protoLog,
	})
	if err != nil {
		return nil, err
	}

	s.client, err = beacon.NewClient(s.layer, beacon.ClientConfig{
		RetryInterval: cfg.RetryInterval,
		Timeout:       cfg.Timeout,
		OnStatus:      s.printStatus,
		OnReport:      s.printReport,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	if err := s.configure(); err != nil {
		return nil, err
	}
	return s, nil
}

// configure plays the provisioner for the client model.
func (s *Session) configure() error {
	h := s.client.Handle()
	if err := s.node.SetUnicastAddress(s.config.Unicast); err != nil {
		return err
	}
	if err := s.node.BindAppKey(h, s.config.AppKeyIndex); err != nil {
		return err
	}
	if s.config.Target != model.AddressUnassigned {
		pub := model.Publication{Address: s.config.Target, AppKeyIndex: s.config.AppKeyIndex, TTL: s.config.TTL}
		if err := s.node.SetPublication(h, pub); err != nil {
			return err
		}
	}
	if len(s.config.Groups) > 0 {
		if err := s.node.AllocSubscriptionList(h, len(s.config.Groups)); err != nil {
			return err
		}
		for _, g := range s.config.Groups {
			if err := s.node.AddSubscription(h, g); err != nil {
				return err
			}
		}
	}
	return nil
}

// Connect opens the configured bearer. Without an explicit address the
// node announcing the target is looked up with browser.
func (s *Session) Connect(ctx context.Context, browser discovery.Browser) error {
	b, _, err := s.open(ctx, browser)
	if err != nil {
		return err
	}
	s.AddBearer(b)
	return nil
}

// Watch keeps a bearer open until ctx ends, redialing with backoff when it
// drops. Publications are printed as they arrive. A failing first connect is
// returned.
func (s *Session) Watch(ctx context.Context, browser discovery.Browser) error {
	var current transport.Bearer
	m, err := connection.NewManager(connection.ManagerConfig{
		Dial: func(ctx context.Context) (<-chan struct{}, error) {
			if current != nil {
				s.dropBearer(current)
				current = nil
			}
			b, done, err := s.open(ctx, browser)
			if err != nil {
				return nil, err
			}
			s.AddBearer(b)
			current = b
			return done, nil
		},
		Backoff: connection.DefaultBackoffConfig(),
		OnStateChange: func(from, to connection.State) {
			s.logger.Info("bearer state changed", "from", from, "to", to)
		},
		OnRetry: func(attempt int, delay time.Duration, lastErr error) {
			s.logger.Warn("redialing bearer", "attempt", attempt, "delay", delay, "error", lastErr)
		},
	})
	if err != nil {
		return err
	}
	return m.Run(ctx)
}

// open dials the configured bearer. The channel is closed when it goes down.
func (s *Session) open(ctx context.Context, browser discovery.Browser) (transport.Bearer, <-chan struct{}, error) {
	switch {
	case s.config.Serial.Port != "":
		b, err := transport.OpenSerial(transport.SerialConfig{
			Port:           s.config.Serial.Port,
			Baud:           s.config.Serial.Baud,
			OnReceive:      s.receive,
			Logger:         s.logger,
			ProtocolLogger: s.protoLog,
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b.Done(), nil

	case s.config.Connect != "":
		return s.dial(ctx, s.config.Connect)

	default:
		if !s.config.Target.IsUnicast() {
			return nil, nil, fmt.Errorf("%w: discovery needs a unicast target, or use --connect", ErrNoTarget)
		}
		svc, err := browser.FindByAddress(ctx, s.config.Target)
		if err != nil {
			return nil, nil, err
		}
		addr, err := serviceAddress(svc)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("found node", "instance", svc.InstanceName, "addr", addr)
		return s.dial(ctx, addr)
	}
}

func (s *Session) dial(ctx context.Context, addr string) (transport.Bearer, <-chan struct{}, error) {
	c, err := transport.DialStream(ctx, addr, transport.StreamClientConfig{
		OnReceive:      s.receive,
		ProtocolLogger: s.protoLog,
		OnClose: func(err error) {
			if err != nil {
				s.logger.Warn("stream bearer closed", "error", err)
			}
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Done(), nil
}

// serviceAddress picks the first announced IP, falling back to the host name.
func serviceAddress(svc *discovery.NodeService) (string, error) {
	host := svc.Host
	if len(svc.Addresses) > 0 {
		host = svc.Addresses[0]
	}
	if host == "" || svc.Port == 0 {
		return "", fmt.Errorf("%s announces no usable address", svc.InstanceName)
	}
	return net.JoinHostPort(host, strconv.Itoa(int(svc.Port))), nil
}

// AddBearer attaches a bearer. The session closes it.
func (s *Session) AddBearer(b transport.Bearer) {
	s.bearers = append(s.bearers, b)
	s.layer.AddBearer(b)
}

// dropBearer detaches and closes a bearer.
func (s *Session) dropBearer(b transport.Bearer) {
	s.layer.RemoveBearer(b)
	s.bearers = slices.DeleteFunc(s.bearers, func(x transport.Bearer) bool { return x == b })
	if err := b.Close(); err != nil {
		s.logger.Debug("closing bearer", "error", err)
	}
}

func (s *Session) receive(pdu []byte) {
	if err := s.layer.Receive(pdu); err != nil {
		s.logger.Debug("PDU not processed", "error", err)
	}
}

// Get asks the target for the beacon flag.
func (s *Session) Get(ctx context.Context) (bool, error) {
	if s.config.Target == model.AddressUnassigned {
		return false, ErrNoTarget
	}
	return s.client.Get(ctx)
}

// Set writes the beacon flag. Unreliable sets return at once with the
// requested value.
func (s *Session) Set(ctx context.Context, on, unreliable bool) (bool, error) {
	if s.config.Target == model.AddressUnassigned {
		return false, ErrNoTarget
	}
	if unreliable {
		return on, s.client.SetUnreliable(on)
	}
	return s.client.Set(ctx, on)
}

func (s *Session) printStatus(src model.Address, value bool) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, "%s status %s\n", src, onOff(value))
}

func (s *Session) printReport(src model.Address, data [wire.ReportLength]byte) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, "%s report %q (% X)\n", src, reportText(data), data[:])
}

// reportText returns the printable prefix of a report up to the first NUL.
func reportText(data [wire.ReportLength]byte) string {
	n := 0
	for n < len(data) && data[n] != 0 {
		n++
	}
	return string(data[:n])
}

// Close closes the bearers and the capture file.
func (s *Session) Close() error {
	var errs []error
	for _, b := range s.bearers {
		errs = append(errs, b.Close())
	}
	s.bearers = nil
	if s.capture != nil {
		errs = append(errs, s.capture.Close())
		s.capture = nil
	}
	return errors.Join(errs...)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
