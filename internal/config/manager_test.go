package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./data/guilds.json
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owner ids = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("storage driver = %q", cfg.Storage.Driver)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
telegram:
  token: "123:abc"
  tokenn: "typo"
logging:
  console: true
storage: {}
`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("telegram.poll_timeout", "45s")
	if err != nil {
		t.Fatalf("ParseDurationField error: %v", err)
	}
	if d.Seconds() != 45 {
		t.Fatalf("d = %v", d)
	}

	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for garbage duration")
	}
}
