package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	write := func(addr string) {
		t.Helper()
		body := "hub:\n  address: " + addr + "\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("h1:4196")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, logger, func(c *Config) { reloaded <- c })
	}()

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	write("h2:4196")

	select {
	case c := <-reloaded:
		if c.Hub.Address != "h2:4196" {
			t.Errorf("reloaded address = %q, want h2:4196", c.Hub.Address)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change never triggered a reload")
	}

	// A broken edit is skipped, not fatal.
	if err := os.WriteFile(path, []byte("{{{"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-reloaded:
		t.Errorf("broken file produced a reload: %+v", c)
	case <-time.After(500 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
