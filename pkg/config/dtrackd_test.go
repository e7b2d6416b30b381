package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/config"
)

func TestLoadOrDefaultResolvesPathsRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lab", "dtrackd.toml")
	mustMkdirAll(t, filepath.Dir(cfgPath))

	mustWriteFile(t, cfgPath, `
[record]
path = "rec/session.jsonl"

[log]
path = "/var/log/dtrackd.log"
`)

	cfg, exists, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists {
		t.Fatalf("expected config to exist")
	}

	want := filepath.Join(filepath.Dir(cfgPath), "rec", "session.jsonl")
	if got := cfg.RecordPath(); got != want {
		t.Fatalf("unexpected record path: got %q want %q", got, want)
	}
	if got := cfg.LogPath(); got != "/var/log/dtrackd.log" {
		t.Fatalf("absolute log path changed: %q", got)
	}
}

func TestLoadOrDefaultFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dtrackd.toml")
	mustWriteFile(t, cfgPath, "[data]\nport = 5001\n[command]\nhost = 'atc-301'\nremote = 'DTrack2'\n")

	cfg, _, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Data.Port != 5001 {
		t.Fatalf("unexpected data port: %d", cfg.Data.Port)
	}
	if cfg.Command.Remote != "dtrack2" {
		t.Fatalf("remote not normalized: %q", cfg.Command.Remote)
	}
	if cfg.Command.Port != 50105 || cfg.Command.FeedbackPort != 50110 {
		t.Fatalf("unexpected command ports: %d %d", cfg.Command.Port, cfg.Command.FeedbackPort)
	}
	if cfg.DataTimeout() != time.Second {
		t.Fatalf("unexpected data timeout: %v", cfg.DataTimeout())
	}
	if cfg.CommandTimeout() != 10*time.Second {
		t.Fatalf("unexpected command timeout: %v", cfg.CommandTimeout())
	}
	if cfg.Foxglove.WSAddr == "" || cfg.Foxglove.MarkerTopic == "" {
		t.Fatalf("expected default foxglove settings")
	}
	if cfg.RecordPath() != "" {
		t.Fatalf("recording should be off by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")

	if _, err := config.Load(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	cfg, exists, err := config.LoadOrDefault(path)
	if err != nil || exists {
		t.Fatalf("expected defaults, got exists=%v err=%v", exists, err)
	}
	if cfg.ConfigPath() != path {
		t.Fatalf("unexpected config path: %q", cfg.ConfigPath())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"data.port":          "[data]\nport = 70000\n",
		"data.multicast":     "[data]\nmulticast = '10.0.0.1'\n",
		"exclusive":          "[data]\nmulticast = '224.0.1.1'\n[command]\nhost = 'atc'\n",
		"command.remote":     "[command]\nremote = 'dtrack3'\n",
		"dtrack1_port":       "[command]\nremote = 'dtrack1'\n",
		"log.level":          "[log]\nlevel = 'loud'\n",
		"data.buffer_size":   "[data]\nbuffer_size = -1\n",
		"parse config":       "[data\n",
		"command.timeout_us": "[command]\ntimeout_us = -5\n",
	}
	for want, content := range cases {
		path := filepath.Join(t.TempDir(), "dtrackd.toml")
		mustWriteFile(t, path, content)
		_, _, err := config.LoadOrDefault(path)
		if err == nil {
			t.Fatalf("%s: expected error", want)
		}
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: unexpected error %v", want, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dtrackd.toml")
	cfg := config.Default()
	cfg.Data.Multicast = "239.0.0.5"
	cfg.Record.Path = "out.jsonl"
	cfg.Metrics.Listen = ":9100"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Data.Multicast != "239.0.0.5" || loaded.Metrics.Listen != ":9100" {
		t.Fatalf("settings lost: %+v", loaded)
	}
	if got, want := loaded.RecordPath(), filepath.Join(filepath.Dir(path), "out.jsonl"); got != want {
		t.Fatalf("record path: got %q want %q", got, want)
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
