package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" {
		t.Errorf("port=%d mode=%s", cfg.Port, cfg.Mode)
	}
	if cfg.ChunkInterval != 250*time.Millisecond || cfg.DrainDelay != 3*time.Second {
		t.Errorf("chunk=%v drain=%v", cfg.ChunkInterval, cfg.DrainDelay)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Errorf("ping=%v", cfg.PingPeriod)
	}
	if cfg.Codec != "audio/pcmu" {
		t.Errorf("codec=%s", cfg.Codec)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("ice servers = %+v", cfg.ICEServers)
	}
	if cfg.Level() != zerolog.InfoLevel {
		t.Errorf("level = %s", cfg.Level())
	}
}

func TestFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.test.yaml")
	yaml := `
port: 9090
log_level: debug
chunk_interval: 500ms
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
endpoints:
  - role: recording
    url: ws://rec/{room}
  - role: monitoring
    url: ws://mon/{room}
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOICECALL_CODEC", "audio/pcma")

	cfg, err := LoadFile(file)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 9090 || cfg.ChunkInterval != 500*time.Millisecond {
		t.Errorf("port=%d chunk=%v", cfg.Port, cfg.ChunkInterval)
	}
	if cfg.Codec != "audio/pcma" {
		t.Errorf("env override ignored: codec=%s", cfg.Codec)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[1].Role != "monitoring" {
		t.Errorf("endpoints = %+v", cfg.Endpoints)
	}
	m, _ := domain.NewMembership("r1", "alice")
	if got := cfg.Endpoints[0].Expand(m).URL; got != "ws://rec/r1" {
		t.Errorf("expanded endpoint = %s", got)
	}
	if cfg.Config.ChunkInterval != 500*time.Millisecond {
		t.Errorf("publisher config chunk=%v", cfg.Config.ChunkInterval)
	}
	if s := cfg.ICEServers[0]; s.Username != "u" || s.Credential != "p" {
		t.Errorf("ice server = %+v", s)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("level = %s", cfg.Level())
	}
}
