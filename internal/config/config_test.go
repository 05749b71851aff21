package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	body := `
hub:
  address: 192.168.1.40:4196
  user: admin
  password: hunter2
  idle_timeout: 45s
  reconnect_delay: 10s
  reconnect_multiplier: 1.5
monitor:
  enabled: true
  addr: 127.0.0.1:9000
capture:
  enabled: true
  dir: /tmp/caps
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Hub.Address != "192.168.1.40:4196" || c.Hub.User != "admin" {
		t.Errorf("hub = %+v, want address and user from file", c.Hub)
	}
	if got := time.Duration(c.Hub.IdleTimeout); got != 45*time.Second {
		t.Errorf("idle_timeout = %v, want 45s", got)
	}
	if !c.Monitor.Enabled || c.Monitor.Addr != "127.0.0.1:9000" {
		t.Errorf("monitor = %+v, want enabled on 127.0.0.1:9000", c.Monitor)
	}
	if c.Capture.Dir != "/tmp/caps" {
		t.Errorf("capture dir = %q, want /tmp/caps", c.Capture.Dir)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", c.Logging.Level)
	}
	// Untouched fields still get defaults.
	if c.Logging.Format != "text" {
		t.Errorf("logging format = %q, want text default", c.Logging.Format)
	}
	if c.Capture.Prefix != "hub" {
		t.Errorf("capture prefix = %q, want hub default", c.Capture.Prefix)
	}
}

func TestLoadMinimalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	body := "hub:\n  address: 10.0.0.2:4196\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Monitor.Addr != ":8480" || c.Logging.Level != "info" {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Path() != path {
		t.Errorf("Path = %q, want %q", c.Path(), path)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no address or serial", "hub:\n  user: a\n", "address or a serial"},
		{"bad multiplier", "hub:\n  address: h:1\n  reconnect_multiplier: 0.5\n", "multiplier"},
		{"bad level", "hub:\n  address: h:1\nlogging:\n  level: loud\n", "logging.level"},
		{"bad duration", "hub:\n  address: h:1\n  idle_timeout: soon\n", "duration"},
		{"not yaml", "{{{{", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load accepted a bad file")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	c := Default()
	c.Hub.Address = "192.168.1.40:4196"
	c.Hub.User = "admin"
	c.Hub.IdleTimeout = Duration(90 * time.Second)
	if err := c.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("config file mode = %o, want 600 (credentials)", got)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if loaded.Hub.Address != c.Hub.Address || loaded.Hub.IdleTimeout != c.Hub.IdleTimeout {
		t.Errorf("roundtrip = %+v, want %+v", loaded.Hub, c.Hub)
	}
}

func TestDurationForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	body := "hub:\n  address: h:1\n  idle_timeout: 90\n  read_timeout: 1m30s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := time.Duration(c.Hub.IdleTimeout); got != 90*time.Second {
		t.Errorf("bare number = %v, want 90s", got)
	}
	if got := time.Duration(c.Hub.ReadTimeout); got != 90*time.Second {
		t.Errorf("1m30s = %v, want 90s", got)
	}
}

func TestSessionConfigOverlay(t *testing.T) {
	c := Default()
	c.Hub.Address = "192.168.1.40:4196"
	c.Hub.User = "admin"
	c.Hub.Password = "pw"
	c.Hub.IdleTimeout = Duration(2 * time.Minute)
	c.Hub.ReconnectMultiplier = 2.0

	sc := c.SessionConfig()
	if sc.Address != c.Hub.Address || sc.UserID != "admin" || sc.Password != "pw" {
		t.Errorf("session identity = %+v, want file values", sc)
	}
	if sc.IdleTimeout != 2*time.Minute {
		t.Errorf("IdleTimeout = %v, want 2m", sc.IdleTimeout)
	}
	if sc.ReconnectMultiplier != 2.0 {
		t.Errorf("ReconnectMultiplier = %v, want 2.0", sc.ReconnectMultiplier)
	}
	// Fields the file leaves zero keep the session defaults.
	if sc.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want 10s default", sc.ConnectTimeout)
	}
	if err := sc.Validate(); err != nil {
		t.Errorf("derived session config invalid: %v", err)
	}
}
