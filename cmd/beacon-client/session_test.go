package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simple-beacon/beacon-go/pkg/access"
	"github.com/simple-beacon/beacon-go/pkg/beacon"
	"github.com/simple-beacon/beacon-go/pkg/discovery"
	"github.com/simple-beacon/beacon-go/pkg/model"
	"github.com/simple-beacon/beacon-go/pkg/transport"
	"github.com/simple-beacon/beacon-go/pkg/wire"
)

const (
	serverAddr model.Address = 0x0010
	reportAddr model.Address = 0xC001
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for the session's print callbacks.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testServer is a provisioned node with a beacon server.
type testServer struct {
	layer  *access.Layer
	server *beacon.Server
	flag   *beacon.Flag
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	node := model.NewNode(model.NodeConfig{})
	layer, err := access.NewLayer(access.Config{Node: node, Logger: testLogger()})
	require.NoError(t, err)

	flag := beacon.NewFlag(false)
	server, err := beacon.NewServer(layer, flag, beacon.ServerConfig{})
	require.NoError(t, err)

	require.NoError(t, node.SetUnicastAddress(serverAddr))
	require.NoError(t, node.BindAppKey(server.Handle(), 0))
	require.NoError(t, node.SetPublication(server.Handle(), model.Publication{Address: reportAddr}))
	return &testServer{layer: layer, server: server, flag: flag}
}

func (ts *testServer) receive(pdu []byte) {
	_ = ts.layer.Receive(pdu)
}

func clientConfig() *Config {
	cfg := DefaultConfig()
	cfg.Target = serverAddr
	cfg.Groups = []model.Address{reportAddr}
	cfg.RetryInterval = 20 * time.Millisecond
	cfg.Timeout = 200 * time.Millisecond
	return cfg
}

func linkedSession(t *testing.T, cfg *Config, out io.Writer) (*Session, *testServer) {
	t.Helper()
	ts := newTestServer(t)

	s, err := NewSession(cfg, testLogger(), out)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	local, remote := transport.NewLoopback()
	local.SetReceiver(s.receive)
	remote.SetReceiver(ts.receive)
	s.AddBearer(local)
	ts.layer.AddBearer(remote)
	return s, ts
}

func TestSessionGetSet(t *testing.T) {
	var out syncBuffer
	s, ts := linkedSession(t, clientConfig(), &out)
	ctx := context.Background()

	v, err := s.Get(ctx)
	require.NoError(t, err)
	assert.False(t, v)

	v, err = s.Set(ctx, true, false)
	require.NoError(t, err)
	assert.True(t, v)
	assert.True(t, ts.flag.ReadState())

	v, err = s.Set(ctx, false, true)
	require.NoError(t, err)
	assert.False(t, v)
	assert.False(t, ts.flag.ReadState())

	var buf bytes.Buffer
	require.NoError(t, runGet(ctx, s, &buf))
	assert.Equal(t, "0x0010: off\n", buf.String())

	buf.Reset()
	require.NoError(t, runSet(ctx, s, true, false, &buf))
	assert.Equal(t, "0x0010: on\n", buf.String())

	buf.Reset()
	require.NoError(t, runSet(ctx, s, false, true, &buf))
	assert.Equal(t, "0x0010: sent off\n", buf.String())

	// Replies to our own requests are not printed as unsolicited.
	assert.Empty(t, out.String())
}

func TestSessionPrintsPublications(t *testing.T) {
	var out syncBuffer
	_, ts := linkedSession(t, clientConfig(), &out)

	var report [wire.ReportLength]byte
	copy(report[:], "Hello world !!!")
	require.NoError(t, ts.server.PublishReport(report))
	require.NoError(t, ts.server.PublishStatus(true))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `0x0010 report "Hello world !!!" (48 65 6C`), lines[0])
	assert.Equal(t, "0x0010 status on", lines[1])
}

func TestSessionNoTarget(t *testing.T) {
	cfg := clientConfig()
	cfg.Target = model.AddressUnassigned
	s, _ := linkedSession(t, cfg, io.Discard)

	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, ErrNoTarget)
	_, err = s.Set(context.Background(), true, false)
	assert.ErrorIs(t, err, ErrNoTarget)

	err = s.Connect(context.Background(), &fakeBrowser{})
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestSessionTimeout(t *testing.T) {
	cfg := clientConfig()
	s, err := NewSession(cfg, testLogger(), io.Discard)
	require.NoError(t, err)
	defer s.Close()

	// A bearer nobody listens on.
	local, _ := transport.NewLoopback()
	s.AddBearer(local)

	_, err = s.Get(context.Background())
	assert.ErrorIs(t, err, beacon.ErrTimeout)
}

type fakeBrowser struct {
	services []*discovery.NodeService
	err      error
}

func (f *fakeBrowser) Browse(ctx context.Context) (<-chan *discovery.NodeService, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan *discovery.NodeService, len(f.services))
	for _, svc := range f.services {
		out <- svc
	}
	close(out)
	return out, nil
}

func (f *fakeBrowser) FindByAddress(ctx context.Context, addr model.Address) (*discovery.NodeService, error) {
	for _, svc := range f.services {
		if svc.UnicastAddress == addr {
			return svc, nil
		}
	}
	return nil, discovery.ErrNotFound
}

func TestSessionConnectDiscovered(t *testing.T) {
	ts := newTestServer(t)
	srv, err := transport.NewStreamServer(transport.StreamServerConfig{
		Address:   "127.0.0.1:0",
		OnReceive: ts.receive,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Close()
	ts.layer.AddBearer(srv)

	port := srv.Addr().(*net.TCPAddr).Port
	browser := &fakeBrowser{services: []*discovery.NodeService{{
		InstanceName: "beacon-0a1b2c3d",
		Port:         uint16(port),
		Addresses:    []string{"127.0.0.1"},
		NodeInfo:     discovery.NodeInfo{UUID: uuid.New(), UnicastAddress: serverAddr, ElementCount: 1},
	}}}

	cfg := clientConfig()
	cfg.Timeout = 2 * time.Second
	s, err := NewSession(cfg, testLogger(), io.Discard)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Connect(context.Background(), browser))

	otherCfg := clientConfig()
	otherCfg.Target = 0x0020
	other, err := NewSession(otherCfg, testLogger(), io.Discard)
	require.NoError(t, err)
	defer other.Close()
	assert.ErrorIs(t, other.Connect(context.Background(), browser), discovery.ErrNotFound)

	v, err := s.Set(context.Background(), true, false)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestServiceAddress(t *testing.T) {
	addr, err := serviceAddress(&discovery.NodeService{Host: "desk.local.", Port: 7755})
	require.NoError(t, err)
	assert.Equal(t, "desk.local.:7755", addr)

	addr, err = serviceAddress(&discovery.NodeService{Host: "desk.local.", Port: 7755, Addresses: []string{"fe80::1", "192.0.2.1"}})
	require.NoError(t, err)
	assert.Equal(t, "[fe80::1]:7755", addr)

	_, err = serviceAddress(&discovery.NodeService{InstanceName: "x"})
	assert.Error(t, err)
}

func TestRunBrowse(t *testing.T) {
	browser := &fakeBrowser{services: []*discovery.NodeService{
		{
			InstanceName: "beacon-0a1b2c3d",
			Port:         7755,
			Addresses:    []string{"192.0.2.1"},
			NodeInfo:     discovery.NodeInfo{UnicastAddress: serverAddr, ElementCount: 2, Name: "desk"},
		},
		{
			InstanceName: "beacon-ffffffff",
			NodeInfo:     discovery.NodeInfo{ElementCount: 1},
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, runBrowse(context.Background(), browser, &buf))
	out := buf.String()
	assert.Contains(t, out, "INSTANCE")
	assert.Regexp(t, `beacon-0a1b2c3d\s+0x0010\s+2\s+desk\s+192\.0\.2\.1:7755`, out)
	assert.Regexp(t, `beacon-ffffffff\s+-\s+1\s+-\s+-`, out)

	buf.Reset()
	require.NoError(t, runBrowse(context.Background(), &fakeBrowser{}, &buf))
	assert.Contains(t, buf.String(), "no beacon nodes found")
}

func TestReportText(t *testing.T) {
	var data [wire.ReportLength]byte
	assert.Equal(t, "", reportText(data))
	for i := range data {
		data[i] = 'a'
	}
	assert.Equal(t, strings.Repeat("a", wire.ReportLength), reportText(data))
}

func startStreamServer(t *testing.T, ts *testServer, addr string) *transport.StreamServer {
	t.Helper()
	srv, err := transport.NewStreamServer(transport.StreamServerConfig{
		Address:   addr,
		OnReceive: ts.receive,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	ts.layer.AddBearer(srv)
	return srv
}

func TestSessionWatchRedials(t *testing.T) {
	ts := newTestServer(t)
	srv := startStreamServer(t, ts, "127.0.0.1:0")
	addr := srv.Addr().String()

	var out syncBuffer
	cfg := clientConfig()
	cfg.Connect = addr
	s, err := NewSession(cfg, testLogger(), &out)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- s.Watch(ctx, &fakeBrowser{}) }()

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, ts.server.PublishStatus(true))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "0x0010 status on") }, 2*time.Second, 10*time.Millisecond)

	// Restart the proxy on the same port.
	ts.layer.RemoveBearer(srv)
	require.NoError(t, srv.Close())
	srv2 := startStreamServer(t, ts, addr)
	defer srv2.Close()

	require.Eventually(t, func() bool { return srv2.ConnectionCount() == 1 }, 5*time.Second, 20*time.Millisecond)
	v, err := s.Set(context.Background(), false, false)
	require.NoError(t, err)
	assert.False(t, v)
	assert.False(t, ts.flag.ReadState())

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestSessionWatchFirstDialFails(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	cfg := clientConfig()
	cfg.Connect = addr
	s, err := NewSession(cfg, testLogger(), io.Discard)
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Watch(context.Background(), &fakeBrowser{}))
}
