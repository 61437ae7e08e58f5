package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lexware/chatsync/testutil"
)

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(testutil.CreateTempDir(t), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ServerURL != "http://localhost:8000" {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.CacheDir == "" {
		t.Error("CacheDir should default to a home-relative directory")
	}
}

func TestLoadConfig_ReadsYAML(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := filepath.Join(dir, "config.yaml")
	content := "server_url: https://chat.example.com\napi_token: secret\ncache_dir: " + dir + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ServerURL != "https://chat.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.APIToken != "secret" {
		t.Errorf("APIToken = %q", cfg.APIToken)
	}
	if cfg.CacheDir != dir {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, dir)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(testutil.CreateTempDir(t), "config.yaml")
	if err := os.WriteFile(path, []byte("server_url: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() with malformed YAML should fail")
	}
}

func TestConfig_CachePaths(t *testing.T) {
	cfg := &Config{CacheDir: "/tmp/chatsync-cache"}
	if got := cfg.TranscriptDBPath(); got != filepath.Join("/tmp/chatsync-cache", "transcripts.db") {
		t.Errorf("TranscriptDBPath() = %q", got)
	}
	if got := cfg.SessionIndexPath(); !strings.HasSuffix(got, "sessions.yaml") {
		t.Errorf("SessionIndexPath() = %q", got)
	}
}
