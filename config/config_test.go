package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "listen_port: 41000\ntick_rate: 60\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenPort != 41000 {
		t.Errorf("ListenPort = %d, want 41000", cfg.ListenPort)
	}
	if cfg.TickRate != 60 {
		t.Errorf("TickRate = %d, want 60", cfg.TickRate)
	}
	// Untouched keys keep defaults.
	if cfg.MaxPlayersPerMatch != 16 {
		t.Errorf("MaxPlayersPerMatch = %d, want default 16", cfg.MaxPlayersPerMatch)
	}
	if cfg.FillTimeoutSeconds != 180 {
		t.Errorf("FillTimeoutSeconds = %d, want default 180", cfg.FillTimeoutSeconds)
	}
	if cfg.AuthMode != "disabled" {
		t.Errorf("AuthMode = %q, want default disabled", cfg.AuthMode)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero tick rate", "tick_rate: 0\n"},
		{"zero players", "max_players_per_match: 0\n"},
		{"unknown auth mode", "auth_mode: oauth2\n"},
		{"malformed yaml", "tick_rate: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
