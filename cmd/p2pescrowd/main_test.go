package main

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"p2pescrow/config"
	"p2pescrow/core/events"
	"p2pescrow/core/state"
	gwconfig "p2pescrow/gateway/config"
	"p2pescrow/storage"
)

func TestLoadGatewayConfigFallsBackToDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.GatewayConfig = "missing.yaml"

	gwCfg, path, err := loadGatewayConfig(cfg)
	require.NoError(t, err)
	require.Empty(t, path)
	require.Equal(t, ":8080", gwCfg.ListenAddress)
}

func TestBuildEnginesWiresAdminSet(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store := state.NewStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Admin.Addresses = []string{"0x1111111111111111111111111111111111111111"}
	cfg.Admin.Threshold = 1

	engines, err := buildEngines(cfg, store, events.NoopEmitter{}, logger)
	require.NoError(t, err)
	require.NotNil(t, engines.escrow)
	require.NotNil(t, engines.reputation)
	require.NotNil(t, engines.rewards)

	token, err := engines.rewards.Token()
	require.NoError(t, err)
	require.Equal(t, cfg.Rewards.RatePerTrade, token.Params.RatePerTrade)

	_, err = engines.escrow.Offer([32]byte{1})
	require.Error(t, err)
}

func TestBuildEnginesRejectsBadThreshold(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	cfg := config.Default()
	cfg.Admin.Addresses = []string{"0x1111111111111111111111111111111111111111"}
	cfg.Admin.Threshold = 2

	_, err := buildEngines(cfg, state.NewStore(db), events.NoopEmitter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestNewListenerCapsConnections(t *testing.T) {
	gwCfg := gwconfig.Default()
	gwCfg.ListenAddress = "127.0.0.1:0"
	gwCfg.MaxConnections = 1

	listener, err := newListener(gwCfg, nil)
	require.NoError(t, err)
	defer listener.Close()

	first, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer first.Close()
	held, err := listener.Accept()
	require.NoError(t, err)

	second, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	select {
	case conn := <-accepted:
		conn.Close()
		t.Fatalf("second connection accepted while the first was held")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, held.Close())
	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatalf("second connection not accepted after the first closed")
	}
}
