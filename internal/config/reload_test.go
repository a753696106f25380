// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHolder(t *testing.T, content string) (*ConfigHolder, string) {
	t.Helper()
	path := writeConfig(t, "config.yaml", content)
	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	return NewConfigHolder(initial, loader, path), path
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestConfigHolderReloadAppliesAndNotifies(t *testing.T) {
	holder, path := newTestHolder(t, "logLevel: info\n")
	require.Equal(t, "info", holder.Get().LogLevel)

	ch := make(chan AppConfig, 1)
	holder.RegisterListener(ch)

	rewrite(t, path, "logLevel: debug\nupload:\n  maxFileBytes: 4096\n")
	require.NoError(t, holder.Reload(context.Background()))

	got := holder.Get()
	assert.Equal(t, "debug", got.LogLevel)
	assert.Equal(t, int64(4096), got.Upload.MaxFileBytes)

	select {
	case notified := <-ch:
		assert.Equal(t, "debug", notified.LogLevel)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestConfigHolderReloadKeepsOldOnError(t *testing.T) {
	holder, path := newTestHolder(t, "logLevel: warn\n")
	ch := make(chan AppConfig, 1)
	holder.RegisterListener(ch)

	rewrite(t, path, "logLevel: loud\n")
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, "warn", holder.Get().LogLevel)

	rewrite(t, path, "unknownKey: 1\n")
	err := holder.Reload(context.Background())
	assert.ErrorIs(t, err, ErrUnknownConfigField)
	assert.Equal(t, "warn", holder.Get().LogLevel)

	assert.Empty(t, ch)
}

func TestConfigHolderSlowListenerDoesNotBlock(t *testing.T) {
	holder, path := newTestHolder(t, "logLevel: info\n")
	holder.RegisterListener(make(chan AppConfig))

	rewrite(t, path, "logLevel: error\n")
	done := make(chan error, 1)
	go func() { done <- holder.Reload(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on a listener without a reader")
	}
	assert.Equal(t, "error", holder.Get().LogLevel)
}

func TestStartWatcherReloadsOnWrite(t *testing.T) {
	holder, path := newTestHolder(t, "logLevel: info\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, holder.StartWatcher(ctx))
	defer holder.Stop()

	rewrite(t, path, "logLevel: debug\n")
	assert.Eventually(t, func() bool {
		return holder.Get().LogLevel == "debug"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStartWatcherWithoutFileIsNoop(t *testing.T) {
	holder := NewConfigHolder(Defaults(), NewLoader("", "test"), "")
	require.NoError(t, holder.StartWatcher(context.Background()))
	holder.Stop()
}

func TestStartWatcherMissingFile(t *testing.T) {
	holder := NewConfigHolder(Defaults(), NewLoader("", "test"), "/nonexistent/config.yaml")
	assert.Error(t, holder.StartWatcher(context.Background()))
}

func TestHandleSignalsReloads(t *testing.T) {
	holder, path := newTestHolder(t, "logLevel: info\n")
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		holder.HandleSignals(ctx, sigs)
		close(done)
	}()

	rewrite(t, path, "logLevel: warn\n")
	sigs <- syscall.SIGHUP
	assert.Eventually(t, func() bool {
		return holder.Get().LogLevel == "warn"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestRestartRequiredChanges(t *testing.T) {
	old := Defaults()
	next := old
	next.LogLevel = "debug"
	next.Upload.MaxFileBytes = 10
	assert.Empty(t, RestartRequiredChanges(old, next))

	next.Device.ListenAddr = ":7777"
	next.Names.Backend = "badger"
	next.Workers.Size = 8
	assert.ElementsMatch(t, []string{"device", "names.backend", "workers"}, RestartRequiredChanges(old, next))
}
