package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"revchain/config"
	"revchain/crypto"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		require.Equal(t, genesisPathEnv, key)
		return "env-path", true
	}
	empty := func(string) (string, bool) { return "", false }

	path, err := resolveGenesisPath("cli-path", "cfg-path", lookup)
	require.NoError(t, err)
	require.Equal(t, "cli-path", path)

	path, err = resolveGenesisPath("", "cfg-path", lookup)
	require.NoError(t, err)
	require.Equal(t, "env-path", path)

	path, err = resolveGenesisPath("  ", "cfg-path", empty)
	require.NoError(t, err)
	require.Equal(t, "cfg-path", path)

	_, err = resolveGenesisPath("", "", empty)
	require.Error(t, err)
}

func TestLogFileConfig(t *testing.T) {
	require.Nil(t, logFileConfig(config.LogConfig{}))
	fc := logFileConfig(config.LogConfig{File: "node.log", MaxSizeMB: 5})
	require.NotNil(t, fc)
	require.Equal(t, "node.log", fc.Path)
	require.Equal(t, 5, fc.MaxSizeMB)
}

func TestRunServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	genesisPath := filepath.Join(dir, "genesis.yaml")
	owner := crypto.FromIdentity([20]byte{0x0e}).String()
	require.NoError(t, os.WriteFile(genesisPath, []byte(fmt.Sprintf(`
owner: %s
supplyCap: "1000"
periodDuration: 1h
blackoutDuration: 1m
domain:
  name: revchain
  chainId: 1
`, owner)), 0o644))

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Storage.Backend = "memory"
	cfg.Rollover.Interval = config.Duration{Duration: 10 * time.Millisecond}
	cfg.Archive = config.ArchiveConfig{
		Enabled: true,
		Driver:  "sqlite",
		DSN:     fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	healthLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	go func() {
		done <- run(ctx, cfg, genesisPath, "test", logger, &listeners{http: httpLis, health: healthLis})
	}()

	url := "http://" + httpLis.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}
