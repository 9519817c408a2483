// Package config loads the optional service configuration file.
package config

import (
    "fmt"
    "os"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// Config holds service settings that are awkward as env vars. All fields have
// working defaults; the file pointed to by ROUTES_CONFIG overlays them.
type Config struct {
    // Timezone is the canonical zone used for every delivery-date to weekday
    // derivation. All eligibility math must go through this one zone or
    // date-boundary stops drift between endpoints.
    Timezone string `yaml:"timezone"`
    // DriverColors is the palette cycled through as drivers are created.
    DriverColors []string `yaml:"driverColors"`
    // WebhookMaxAttempts bounds delivery retries before a delivery is failed.
    WebhookMaxAttempts int `yaml:"webhookMaxAttempts"`
    // RateRPS / RateBurst configure the HTTP token bucket; env vars
    // RATE_RPS / RATE_BURST override when set.
    RateRPS   float64 `yaml:"rateRps"`
    RateBurst int     `yaml:"rateBurst"`
}

// Default returns the built-in configuration.
func Default() Config {
    return Config{
        Timezone: "America/New_York",
        DriverColors: []string{
            "#2563eb", "#dc2626", "#16a34a", "#9333ea", "#ea580c",
            "#0891b2", "#ca8a04", "#db2777", "#4f46e5", "#65a30d",
        },
        WebhookMaxAttempts: 10,
        RateRPS:            50,
        RateBurst:          100,
    }
}

// Load reads the YAML file at path and overlays it onto Default. An empty
// path returns Default without touching the filesystem.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        return cfg, nil
    }
    data, err := os.ReadFile(path)
    if err != nil {
        return cfg, fmt.Errorf("read config: %w", err)
    }
    if err := yaml.Unmarshal(data, &cfg); err != nil {
        return cfg, fmt.Errorf("parse config: %w", err)
    }
    if cfg.Timezone == "" {
        cfg.Timezone = "America/New_York"
    }
    if len(cfg.DriverColors) == 0 {
        cfg.DriverColors = Default().DriverColors
    }
    if cfg.WebhookMaxAttempts <= 0 {
        cfg.WebhookMaxAttempts = 10
    }
    return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC if the zone
// database is missing the name.
func (c Config) Location() *time.Location {
    loc, err := time.LoadLocation(c.Timezone)
    if err != nil {
        return time.UTC
    }
    return loc
}

// ColorFor returns the palette color for the nth driver.
func (c Config) ColorFor(seq int) string {
    if len(c.DriverColors) == 0 {
        return "#2563eb"
    }
    if seq < 0 {
        seq = 0
    }
    return c.DriverColors[seq%len(c.DriverColors)]
}
