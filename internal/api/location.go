package api

import (
    "sync"
)

// LatestLocation holds the latest known position for a driver on a day.
type LatestLocation struct {
    Day      string  `json:"day"`
    DriverID string  `json:"driverId"`
    Lat      float64 `json:"lat"`
    Lng      float64 `json:"lng"`
    TS       string  `json:"ts"`
}

// LocationCache stores latest driver locations in memory. Positions are
// ephemeral; the dispatcher map only needs the most recent ping.
type LocationCache struct {
    mu sync.Mutex
    m  map[string]LatestLocation // key: day|driverId
}

func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]LatestLocation{}} }

func (c *LocationCache) key(day, driverID string) string { return day + "|" + driverID }

// Upsert stores or updates the latest location for a driver.
func (c *LocationCache) Upsert(day, driverID string, lat, lng float64, ts string) {
    if day == "" || driverID == "" {
        return
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    c.m[c.key(day, driverID)] = LatestLocation{Day: day, DriverID: driverID, Lat: lat, Lng: lng, TS: ts}
}

// ListByDay returns the latest locations for all drivers active on a day.
func (c *LocationCache) ListByDay(day string) []LatestLocation {
    c.mu.Lock()
    defer c.mu.Unlock()
    out := []LatestLocation{}
    prefix := day + "|"
    for k, v := range c.m {
        if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
            out = append(out, v)
        }
    }
    return out
}
