package config

import (
    "os"
    "path/filepath"
    "testing"
)

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
    cfg, err := Load("")
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.Timezone != "America/New_York" {
        t.Fatalf("timezone: %s", cfg.Timezone)
    }
    if len(cfg.DriverColors) == 0 {
        t.Fatal("expected default palette")
    }
}

func TestLoadOverlay(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "routes.yaml")
    body := "timezone: America/Chicago\ndriverColors: [\"#111111\", \"#222222\"]\nwebhookMaxAttempts: 3\n"
    if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
        t.Fatal(err)
    }
    cfg, err := Load(path)
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if cfg.Timezone != "America/Chicago" {
        t.Fatalf("timezone: %s", cfg.Timezone)
    }
    if cfg.WebhookMaxAttempts != 3 {
        t.Fatalf("attempts: %d", cfg.WebhookMaxAttempts)
    }
    if got := cfg.ColorFor(2); got != "#111111" {
        t.Fatalf("palette wrap: %s", got)
    }
}

func TestLoadMissingFile(t *testing.T) {
    if _, err := Load("/nonexistent/routes.yaml"); err == nil {
        t.Fatal("expected error for missing file")
    }
}
