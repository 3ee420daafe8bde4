package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func writeYAML(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kuzu-memory.yaml")
	writeYAML(t, path, "retention:\n  smart_threshold: 0.30\n")

	reloaded := make(chan types.Config, 1)
	w := NewWatcher(path, func(cfg types.Config) { reloaded <- cfg }, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeYAML(t, path, "retention:\n  smart_threshold: 0.55\n")

	select {
	case cfg := <-reloaded:
		require.Equal(t, 0.55, cfg.Retention.SmartThreshold)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_MalformedYAMLKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kuzu-memory.yaml")
	writeYAML(t, path, "retention:\n  smart_threshold: 0.30\n")

	reloaded := make(chan types.Config, 1)
	w := NewWatcher(path, func(cfg types.Config) { reloaded <- cfg }, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeYAML(t, path, "retention: [this is not valid: yaml")

	select {
	case <-reloaded:
		t.Fatal("onReload should not be called for a malformed file")
	case <-time.After(300 * time.Millisecond):
	}

	writeYAML(t, path, "retention:\n  smart_threshold: 0.80\n")

	select {
	case cfg := <-reloaded:
		require.Equal(t, 0.80, cfg.Retention.SmartThreshold)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for recovery reload")
	}
}

func TestWatcher_StopIsSafeAfterStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kuzu-memory.yaml")
	writeYAML(t, path, "retention:\n  smart_threshold: 0.30\n")

	w := NewWatcher(path, func(types.Config) {}, nil)
	require.NoError(t, w.Start())

	w.Stop()
}
