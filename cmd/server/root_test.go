package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heroes/internal/config"
	"heroes/internal/model"
	"heroes/internal/storage"
)

// execute runs the root command with args and returns the config it produced.
func execute(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var got *config.Config
	cmd := newRootCmd(func(_ context.Context, cfg *config.Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return got, err
}

func TestDefaults(t *testing.T) {
	cfg, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Endpoint)
	assert.Equal(t, "characters.json", cfg.DataFile)
	assert.Equal(t, storage.DriverJSON, cfg.StoreDriver)
	assert.False(t, cfg.CreateIfMissing)
	assert.Empty(t, cfg.JournalPath)
	assert.Equal(t, "Earth-616", cfg.DefaultUniverse)
	assert.Equal(t, 5*time.Second, cfg.EnqueueTimeout)
	assert.Equal(t, 1024, cfg.MaxPendingMutations)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFlagsAndEnvironment(t *testing.T) {
	t.Setenv("HEROES_DATA_FILE", "/tmp/from-env.json")
	t.Setenv("HEROES_ENQUEUE_TIMEOUT", "250ms")

	cfg, err := execute(t, "--endpoint", "127.0.0.1:9999", "--store", "sqlite", "--create-if-missing")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Endpoint)
	assert.Equal(t, storage.DriverSQLite, cfg.StoreDriver)
	assert.True(t, cfg.CreateIfMissing)
	assert.Equal(t, "/tmp/from-env.json", cfg.DataFile)
	assert.Equal(t, 250*time.Millisecond, cfg.EnqueueTimeout)
}

func TestConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "heroes.yaml")
	require.NoError(t, os.WriteFile(file, []byte("default-universe: Earth-1610\nlog-level: debug\n"), 0o644))

	cfg, err := execute(t, "--config", file)
	require.NoError(t, err)
	assert.Equal(t, "Earth-1610", cfg.DefaultUniverse)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "--store", "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")

	_, err = execute(t, "--log-level", "loud")
	require.Error(t, err)

	_, err = execute(t, "unexpected-arg")
	require.Error(t, err)
}

func TestServeLifecycle(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "characters.json")
	cfg := &config.Config{
		Endpoint:            "127.0.0.1:0",
		ShutdownTimeout:     time.Second,
		StoreDriver:         storage.DriverJSON,
		DataFile:            dataFile,
		CreateIfMissing:     true,
		JournalPath:         filepath.Join(dir, "journal.log"),
		DefaultUniverse:     "Earth-616",
		EnqueueTimeout:      time.Second,
		MaxPendingMutations: 8,
		LogLevel:            "error",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	resp, err := http.Post(fmt.Sprintf("http://%s/api/characters", addr), "application/json",
		strings.NewReader(`{"name":"Iron Man","realName":"Tony Stark"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	c, err := storage.NewJSONFileStore(dataFile).LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Collection{{ID: 1, Name: "Iron Man", RealName: "Tony Stark", Universe: "Earth-616"}}, c)
}
