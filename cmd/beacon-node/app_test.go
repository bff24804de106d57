package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/discovery"
	"github.com/simple-beacon/beacon-go/pkg/discovery/mocks"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/persistence"
	"github.com/simple-beacon/beacon-go/pkg/transport"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

const (
	nodeAddr   model.Address = 0x0010
	peerAddr   model.Address = 0x0100
	pubAddr    model.Address = 0xC001
	groupAddr  model.Address = 0xC002
	testAppKey uint16        = 0
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateFile = filepath.Join(t.TempDir(), "state.cbor")
	cfg.Stream.Listen = ""
	cfg.Discovery.Enabled = false
	cfg.Provisioning = &ProvisioningConfig{
		Unicast:        nodeAddr,
		AppKeyIndex:    testAppKey,
		PublishAddress: pubAddr,
		Subscriptions:  []model.Address{groupAddr},
	}
	return cfg
}

// peer is the far end of a loopback link to the app.
type peer struct {
	bearer *transport.LoopbackBearer

	mu   sync.Mutex
	pdus []*access.PDU
}

func attachPeer(t *testing.T, app *App) *peer {
	t.Helper()
	local, remote := transport.NewLoopback()
	local.SetReceiver(app.receive)
	app.AddBearer(local)

	p := &peer{bearer: remote}
	remote.SetReceiver(func(data []byte) {
		pdu, err := access.UnmarshalPDU(data)
		if err != nil {
			t.Errorf("node sent malformed PDU: %v", err)
			return
		}
		p.mu.Lock()
		p.pdus = append(p.pdus, pdu)
		p.mu.Unlock()
	})
	return p
}

func (p *peer) send(t *testing.T, dst model.Address, op wire.Opcode, params []byte) {
	t.Helper()
	pdu := &access.PDU{
		Src:         peerAddr,
		Dst:         dst,
		TTL:         5,
		AppKeyIndex: testAppKey,
		Opcode:      access.Opcode{Code: uint8(op), CompanyID: model.CompanyNordic},
		Params:      params,
	}
	data, err := pdu.Marshal()
	require.NoError(t, err)
	require.NoError(t, p.bearer.Send(data))
}

func (p *peer) last(t *testing.T) *access.PDU {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.pdus, "node sent nothing")
	return p.pdus[len(p.pdus)-1]
}

func (p *peer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pdus)
}

func loadState(t *testing.T, cfg *Config) *persistence.NodeState {
	t.Helper()
	state, err := persistence.NewNodeStateStore(cfg.StateFile).Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	return state
}

func TestAppSetReplies(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	defer app.Close()
	p := attachPeer(t, app)

	p.send(t, nodeAddr, wire.OpcodeSet, []byte{0x01})

	reply := p.last(t)
	assert.Equal(t, uint8(wire.OpcodeStatus), reply.Opcode.Code)
	assert.Equal(t, peerAddr, reply.Dst)
	assert.Equal(t, nodeAddr, reply.Src)
	assert.Equal(t, []byte{0x01}, reply.Params)
	assert.True(t, app.Status().Beacon)

	// The write reached the state file.
	assert.True(t, loadState(t, cfg).Beacon)
}

func TestAppGetAndUnreliable(t *testing.T) {
	app, err := NewApp(testConfig(t), testLogger())
	require.NoError(t, err)
	defer app.Close()
	p := attachPeer(t, app)

	p.send(t, groupAddr, wire.OpcodeSetUnreliable, []byte{0x01})
	assert.Equal(t, 0, p.count(), "unreliable set is not answered")
	assert.True(t, app.Status().Beacon)

	p.send(t, nodeAddr, wire.OpcodeGet, []byte{0x00})
	reply := p.last(t)
	assert.Equal(t, uint8(wire.OpcodeStatus), reply.Opcode.Code)
	assert.Equal(t, []byte{0x01}, reply.Params)

	// Malformed requests are dropped.
	p.send(t, nodeAddr, wire.OpcodeSet, []byte{0x01, 0x02})
	assert.Equal(t, 1, p.count())
}

func TestAppButtons(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	defer app.Close()
	p := attachPeer(t, app)

	require.NoError(t, app.Press(ButtonReport))
	report := p.last(t)
	assert.Equal(t, uint8(wire.OpcodeReportStatus), report.Opcode.Code)
	assert.Equal(t, pubAddr, report.Dst)
	assert.Equal(t, []byte("Hello world !!!\x00"), report.Params)

	require.NoError(t, app.Press(ButtonToggle))
	status := p.last(t)
	assert.Equal(t, uint8(wire.OpcodeStatus), status.Opcode.Code)
	assert.Equal(t, pubAddr, status.Dst)
	assert.Equal(t, []byte{0x01}, status.Params)
	assert.True(t, loadState(t, cfg).Beacon)

	require.NoError(t, app.Press(ButtonToggle))
	assert.Equal(t, []byte{0x00}, p.last(t).Params)

	assert.ErrorIs(t, app.Press(2), ErrUnknownButton)
}

func TestAppReset(t *testing.T) {
	cfg := testConfig(t)
	app, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	defer app.Close()
	p := attachPeer(t, app)
	id := app.Status().UUID

	require.NoError(t, app.Press(ButtonReset))

	st := app.Status()
	assert.Equal(t, model.AddressUnassigned, st.Unicast)
	assert.Equal(t, model.AddressUnassigned, st.Publish)
	assert.Equal(t, id, st.UUID)

	state := loadState(t, cfg)
	assert.Equal(t, uint16(0), state.UnicastAddress)
	assert.Equal(t, id, state.UUID.String())

	// An unprovisioned node neither answers nor publishes.
	p.send(t, nodeAddr, wire.OpcodeGet, []byte{0x00})
	assert.Equal(t, 0, p.count())
	assert.Error(t, app.Press(ButtonReport))
}

func TestAppRestoresState(t *testing.T) {
	cfg := testConfig(t)
	first, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Press(ButtonToggle))
	id := first.Status().UUID
	require.NoError(t, first.Close())

	// Persisted state wins over the provisioning block.
	cfg.Provisioning.Unicast = 0x0200
	second, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	defer second.Close()

	st := second.Status()
	assert.Equal(t, id, st.UUID)
	assert.Equal(t, nodeAddr, st.Unicast)
	assert.Equal(t, pubAddr, st.Publish)
	assert.True(t, st.Beacon)
}

func TestAppReprovisionsAfterReset(t *testing.T) {
	cfg := testConfig(t)
	first, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Reset())
	require.NoError(t, first.Close())

	second, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, nodeAddr, second.Status().Unicast)
}

func TestAppWithoutProvisioning(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provisioning = nil
	cfg.StateFile = ""

	app, err := NewApp(cfg, testLogger())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, model.AddressUnassigned, app.Status().Unicast)
	assert.Error(t, app.Press(ButtonToggle), "no publish address")
}

func TestAppInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Beacon.BoolPolicy = "lenient"
	_, err := NewApp(cfg, testLogger())
	assert.Error(t, err)
}

func TestAppStreamAndDiscovery(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.Listen = "127.0.0.1:0"
	cfg.Metrics.Listen = "127.0.0.1:0"
	cfg.Node.Name = "desk"

	app, err := NewApp(cfg, testLogger())
	require.NoError(t, err)

	adv := mocks.NewMockAdvertiser(t)
	var announced *discovery.NodeInfo
	adv.EXPECT().Advertise(mock.Anything, mock.Anything).
		Run(func(_ context.Context, info *discovery.NodeInfo) { announced = info }).
		Return(nil).Once()
	adv.EXPECT().Update(mock.MatchedBy(func(info *discovery.NodeInfo) bool {
		return info.UnicastAddress == model.AddressUnassigned
	})).Return(nil).Once()
	adv.EXPECT().Stop().Return(nil).Once()
	app.advertiser = adv

	require.NoError(t, app.Start(context.Background()))
	require.NotNil(t, app.StreamAddr())
	require.NotNil(t, app.MetricsAddr())

	require.NotNil(t, announced)
	assert.Equal(t, nodeAddr, announced.UnicastAddress)
	assert.Equal(t, "desk", announced.Name)
	assert.NotZero(t, announced.Port)

	resp, err := http.Get("http://" + app.MetricsAddr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "beacon_server_state")

	require.NoError(t, app.Reset())
	require.NoError(t, app.Close())
}
