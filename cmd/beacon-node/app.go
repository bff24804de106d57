package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simple-beacon/beacon-go/cmd/beacon-node/interactive"
	"github.com/simple-beacon/beacon-go/internal/logging"
	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/beacon"
	"github.com/simple-beacon/beacon-go/pkg/discovery"
	"github.com/simple-beacon/beacon-go/pkg/log"
	"github.com/simple-beacon/beacon-go/pkg/metrics"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/persistence"
	"github.com/simple-beacon/beacon-go/pkg/transport"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

// Buttons of the development kit. The console emulates them.
const (
	ButtonReport = 0
	ButtonToggle = 1
	ButtonReset  = 3
)

// ErrUnknownButton is returned by Press for buttons without a function.
var ErrUnknownButton = errors.New("unknown button")

const helloWorld = "Hello world !!!"

// App is a running beacon node: one server model on an access layer,
// its bearers, persistence, discovery and metrics.
type App struct {
	config *Config
	logger *slog.Logger

	node   *model.Node
	layer  *access.Layer
	server *beacon.Server
	flag   *beacon.Flag
	store  *persistence.NodeStateStore

	registry *prometheus.Registry
	observer *metrics.Observer
	protoLog log.Logger
	capture  *log.FileLogger

	advertiser  discovery.Advertiser
	advertising bool
	stream      *transport.StreamServer
	bearers     []transport.Bearer
	metricsSrv  *http.Server
	metricsAddr net.Addr

	// saveMu serializes writes of the state file.
	saveMu sync.Mutex
}

// NewApp builds the node. Persisted state wins over the static provisioning
// block, which only applies to an unprovisioned node.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	policy, _ := beacon.ParseBoolPolicy(cfg.Beacon.BoolPolicy)

	a := &App{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	if cfg.StateFile != "" {
		a.store = persistence.NewNodeStateStore(cfg.StateFile)
	}

	state, err := a.loadState()
	if err != nil {
		return nil, err
	}

	id := uuid.Nil
	switch {
	case cfg.Node.UUID != "":
		id = uuid.MustParse(cfg.Node.UUID)
	case state != nil:
		id = state.UUID
	}
	a.node = model.NewNode(model.NodeConfig{
		UUID:         id,
		ElementCount: cfg.Node.Elements,
		DefaultTTL:   cfg.Node.DefaultTTL,
	})

	a.observer, err = metrics.NewObserver(a.registry)
	if err != nil {
		return nil, err
	}

	a.protoLog = log.NewSlogAdapter(logger)
	if cfg.Capture.File != "" {
		a.capture = log.NewWriterLogger(logging.RotatingWriter(cfg.Capture.File, cfg.Capture.MaxSizeMB, cfg.Capture.MaxBackups))
		a.protoLog = log.NewMultiLogger(a.capture, a.protoLog)
	}

	a.layer, err = access.NewLayer(access.Config{
		Node:           a.node,
		Logger:         logger,
		ProtocolLogger: a.protoLog,
		Observer:       a.observer,
	})
	if err != nil {
		return nil, err
	}

	initial := cfg.Beacon.Initial
	if state != nil {
		initial = state.Beacon
	}
	a.flag = beacon.NewFlag(initial)
	a.flag.OnChange = a.beaconChanged
	a.observer.SetState(initial)

	a.server, err = beacon.NewServer(a.layer, a.flag, beacon.ServerConfig{
		ElementIndex:   cfg.Beacon.Element,
		BoolPolicy:     policy,
		ProtocolLogger: a.protoLog,
	})
	if err != nil {
		return nil, err
	}

	if state != nil {
		if err := a.node.Restore(state.Config()); err != nil {
			return nil, fmt.Errorf("restore node state: %w", err)
		}
	}
	if !a.node.IsProvisioned() && cfg.Provisioning != nil {
		if err := a.provision(cfg.Provisioning); err != nil {
			return nil, fmt.Errorf("static provisioning: %w", err)
		}
		logger.Info("node provisioned from config", "unicast", cfg.Provisioning.Unicast.String())
	}

	// Persist at once so the UUID survives the first boot.
	if err := a.save(); err != nil {
		return nil, err
	}

	if cfg.Discovery.Enabled {
		a.advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{Interface: cfg.Discovery.Interface})
	}

	logger.Info("beacon node ready",
		"uuid", a.node.UUID().String(),
		"unicast", a.node.UnicastAddress().String(),
		"beacon", onOff(initial))
	return a, nil
}

func (a *App) loadState() (*persistence.NodeState, error) {
	if a.store == nil {
		return nil, nil
	}
	state, err := a.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load node state: %w", err)
	}
	if state != nil {
		a.logger.Info("loaded node state", "path", a.store.Path(), "saved", state.SavedAt.Format(time.RFC3339))
	}
	return state, nil
}

// provision applies the static configuration to the beacon server.
func (a *App) provision(p *ProvisioningConfig) error {
	h := a.server.Handle()
	if err := a.node.SetUnicastAddress(p.Unicast); err != nil {
		return err
	}
	if err := a.node.BindAppKey(h, p.AppKeyIndex); err != nil {
		return err
	}
	if p.PublishAddress != model.AddressUnassigned {
		pub := model.Publication{Address: p.PublishAddress, AppKeyIndex: p.AppKeyIndex, TTL: p.PublishTTL}
		if err := a.node.SetPublication(h, pub); err != nil {
			return err
		}
	}
	if len(p.Subscriptions) > 0 {
		if err := a.node.AllocSubscriptionList(h, len(p.Subscriptions)); err != nil {
			return err
		}
		for _, sub := range p.Subscriptions {
			if err := a.node.AddSubscription(h, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *App) save() error {
	if a.store == nil {
		return nil
	}
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	state := &persistence.NodeState{UUID: a.node.UUID(), Beacon: a.flag.ReadState()}
	state.FromConfig(a.node.Snapshot())
	if err := a.store.Save(state); err != nil {
		return fmt.Errorf("save node state: %w", err)
	}
	return nil
}

// beaconChanged drives the LED.
func (a *App) beaconChanged(value bool) {
	a.logger.Info("LED", "state", onOff(value))
	a.observer.SetState(value)
	if err := a.save(); err != nil {
		a.logger.Warn("state not persisted", "error", err)
	}
}

// Start brings up the configured bearers, the advertiser and the metrics
// endpoint. On error the caller still has to Close the app.
func (a *App) Start(ctx context.Context) error {
	if a.config.Stream.Listen != "" {
		srv, err := transport.NewStreamServer(transport.StreamServerConfig{
			Address:        a.config.Stream.Listen,
			Relay:          a.config.Stream.Relay,
			OnReceive:      a.receive,
			Logger:         a.logger,
			ProtocolLogger: a.protoLog,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("stream bearer: %w", err)
		}
		a.stream = srv
		a.AddBearer(srv)
		a.logger.Info("stream bearer listening", "addr", srv.Addr().String())
	}

	if a.config.Serial.Port != "" {
		sb, err := transport.OpenSerial(transport.SerialConfig{
			Port:           a.config.Serial.Port,
			Baud:           a.config.Serial.Baud,
			OnReceive:      a.receive,
			Logger:         a.logger,
			ProtocolLogger: a.protoLog,
		})
		if err != nil {
			return err
		}
		a.AddBearer(sb)
		a.logger.Info("serial bearer open", "port", a.config.Serial.Port)
	}

	if a.advertiser != nil && a.stream != nil {
		if err := a.advertiser.Advertise(ctx, a.nodeInfo()); err != nil {
			return fmt.Errorf("advertise: %w", err)
		}
		a.advertising = true
	}

	if a.config.Metrics.Listen != "" {
		if err := a.startMetrics(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) startMetrics() error {
	l, err := net.Listen("tcp", a.config.Metrics.Listen)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsAddr = l.Addr()
	go func() {
		if err := a.metricsSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err)
		}
	}()
	a.logger.Info("metrics endpoint listening", "addr", l.Addr().String())
	return nil
}

// AddBearer attaches a bearer to the access layer. The app closes it.
func (a *App) AddBearer(b transport.Bearer) {
	a.bearers = append(a.bearers, b)
	a.layer.AddBearer(b)
}

// receive hands an inbound PDU to the access layer. Rejected PDUs are only
// worth a debug line; nothing is sent for them.
func (a *App) receive(pdu []byte) {
	if err := a.layer.Receive(pdu); err != nil {
		a.logger.Debug("PDU not processed", "error", err)
	}
}

func (a *App) nodeInfo() *discovery.NodeInfo {
	info := &discovery.NodeInfo{
		UUID:           a.node.UUID(),
		UnicastAddress: a.node.UnicastAddress(),
		CompanyID:      model.CompanyNordic,
		ElementCount:   a.node.ElementCount(),
		Name:           a.config.Node.Name,
	}
	if a.stream != nil {
		if tcp, ok := a.stream.Addr().(*net.TCPAddr); ok {
			info.Port = uint16(tcp.Port)
		}
	}
	return info
}

// Press runs the function of a development kit button.
func (a *App) Press(button int) error {
	switch button {
	case ButtonReport:
		return a.server.PublishReport(helloReport())
	case ButtonToggle:
		return a.server.PublishStatus(a.flag.Toggle())
	case ButtonReset:
		return a.Reset()
	default:
		return fmt.Errorf("%w: %d", ErrUnknownButton, button)
	}
}

func helloReport() [wire.ReportLength]byte {
	var data [wire.ReportLength]byte
	copy(data[:], helloWorld)
	return data
}

// Reset clears the provisioned configuration. The UUID and the registered
// models survive.
func (a *App) Reset() error {
	a.node.Reset()
	a.logger.Info("node reset")

	if err := a.save(); err != nil {
		return err
	}
	if a.advertising {
		if err := a.advertiser.Update(a.nodeInfo()); err != nil {
			a.logger.Warn("advertisement not updated", "error", err)
		}
	}
	return nil
}

// Status summarizes the node for the console.
func (a *App) Status() interactive.Status {
	st := interactive.Status{
		UUID:    a.node.UUID().String(),
		Unicast: a.node.UnicastAddress(),
		Beacon:  a.flag.ReadState(),
		Bearers: len(a.bearers),
	}
	if pub, err := a.node.Publication(a.server.Handle()); err == nil {
		st.Publish = pub.Address
	}
	if a.stream != nil {
		st.Peers = a.stream.ConnectionCount()
	}
	return st
}

// StreamAddr returns the stream bearer address, or nil when it is off.
func (a *App) StreamAddr() net.Addr {
	if a.stream == nil {
		return nil
	}
	return a.stream.Addr()
}

// MetricsAddr returns the metrics endpoint address, or nil when it is off.
func (a *App) MetricsAddr() net.Addr {
	return a.metricsAddr
}

// Close stops everything Start brought up.
func (a *App) Close() error {
	var errs []error

	if a.advertising {
		errs = append(errs, a.advertiser.Stop())
		a.advertising = false
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
		cancel()
		a.metricsSrv = nil
	}
	for _, b := range slices.Backward(a.bearers) {
		errs = append(errs, b.Close())
	}
	a.bearers = nil
	if a.capture != nil {
		errs = append(errs, a.capture.Close())
		a.capture = nil
	}
	return errors.Join(errs...)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
