// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/audiocenter/internal/config"
	"github.com/ManuGH/audiocenter/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeDeviceServer blocks in Serve until ctx ends or Shutdown runs.
type fakeDeviceServer struct {
	serveErr  error
	once      sync.Once
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newFakeDeviceServer() *fakeDeviceServer {
	return &fakeDeviceServer{stopped: make(chan struct{})}
}

func (f *fakeDeviceServer) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stopped:
	}
	return nil
}

func (f *fakeDeviceServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	f.once.Do(func() { close(f.stopped) })
	return nil
}

type runnerFunc func(ctx context.Context) error

func (r runnerFunc) Serve(ctx context.Context) error { return r(ctx) }

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func testServerConfig(addr string) config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:      addr,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func testDeps(handler http.Handler) Deps {
	return Deps{
		Logger:       log.WithComponent("test"),
		APIHandler:   handler,
		DeviceServer: newFakeDeviceServer(),
	}
}

func startManager(t *testing.T, mgr Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Start(ctx) }()
	return cancel, errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
		return nil
	}
}

func TestNewManager_Validation(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want error
	}{
		{"missing logger", Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler(), DeviceServer: newFakeDeviceServer()}, ErrMissingLogger},
		{"missing api handler", Deps{Logger: log.WithComponent("test"), DeviceServer: newFakeDeviceServer()}, ErrMissingAPIHandler},
		{"missing device server", Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()}, ErrMissingDeviceServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(testServerConfig("127.0.0.1:0"), tt.deps)
			require.ErrorIs(t, err, tt.want)
		})
	}

	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestManager_StartStop_OK(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	deps := testDeps(handler)
	dev := deps.DeviceServer.(*fakeDeviceServer)

	var timesyncStopped atomic.Bool
	deps.TimeSync = runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		timesyncStopped.Store(true)
		return nil
	})
	var streamsClosed atomic.Bool
	deps.CloseStreams = func() { streamsClosed.Store(true) }

	mgr, err := NewManager(testServerConfig(addr), deps)
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	for _, name := range []string{"pool", "names", "telemetry"} {
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	cancel, errCh := startManager(t, mgr)
	require.NoError(t, waitForListen(addr, 2*time.Second))

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, waitErr(t, errCh))

	assert.True(t, streamsClosed.Load())
	assert.True(t, timesyncStopped.Load())
	assert.Equal(t, int32(1), dev.shutdowns.Load())
	assert.Equal(t, []string{"telemetry", "names", "pool"}, order)

	// a second Shutdown is a no-op
	assert.NoError(t, mgr.Shutdown(context.Background()))
}

func TestManager_StartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	cancel, errCh := startManager(t, mgr)
	require.NoError(t, waitForListen(addr, 2*time.Second))

	assert.ErrorIs(t, mgr.Start(context.Background()), ErrManagerStarted)

	cancel()
	require.NoError(t, waitErr(t, errCh))
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_WithMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	metricsAddr := reserveListenAddr(t)
	deps := testDeps(http.NotFoundHandler())
	deps.MetricsAddr = metricsAddr
	deps.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP test_metric\n"))
	})

	mgr, err := NewManager(testServerConfig(reserveListenAddr(t)), deps)
	require.NoError(t, err)
	cancel, errCh := startManager(t, mgr)
	require.NoError(t, waitForListen(metricsAddr, 2*time.Second))

	cancel()
	require.NoError(t, waitErr(t, errCh))
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	testServer := httptest.NewServer(http.NotFoundHandler())
	defer testServer.Close()

	mgr, err := NewManager(testServerConfig(testServer.Listener.Addr().String()), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, mgr.Start(ctx))
}

func TestManager_DeviceServerFailureStopsEverything(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	deps := testDeps(http.NotFoundHandler())
	dev := deps.DeviceServer.(*fakeDeviceServer)
	dev.serveErr = errors.New("address in use")

	var hookRan atomic.Bool
	mgr, err := NewManager(testServerConfig(reserveListenAddr(t)), deps)
	require.NoError(t, err)
	mgr.RegisterShutdownHook("pool", func(context.Context) error {
		hookRan.Store(true)
		return nil
	})

	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "address in use")
	assert.True(t, hookRan.Load())
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	mgr, err := NewManager(testServerConfig(reserveListenAddr(t)), testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	boom := errors.New("flush failed")
	var later atomic.Bool
	mgr.RegisterShutdownHook("names", func(context.Context) error {
		later.Store(true)
		return nil
	})
	mgr.RegisterShutdownHook("telemetry", func(context.Context) error { return boom })

	cancel, errCh := startManager(t, mgr)
	time.Sleep(50 * time.Millisecond)
	cancel()

	err = waitErr(t, errCh)
	require.ErrorIs(t, err, boom)
	assert.True(t, later.Load(), "hooks after a failing one still run")
}
