package model

import (
    "strings"
    "time"
)

// Core domain types for route planning and reconciliation.

// Client is a delivery recipient. Owned by the CRM side of the system;
// the routing core reads it and writes back only the assigned driver and
// geocoded coordinates.
type Client struct {
    ID               string          `json:"id"`
    FirstName        string          `json:"firstName"`
    LastName         string          `json:"lastName"`
    Street           string          `json:"street,omitempty"`
    Apt              string          `json:"apt,omitempty"`
    City             string          `json:"city,omitempty"`
    State            string          `json:"state,omitempty"`
    Zip              string          `json:"zip,omitempty"`
    Phone            string          `json:"phone,omitempty"`
    Dislikes         string          `json:"dislikes,omitempty"`
    Lat              *float64        `json:"lat,omitempty"`
    Lng              *float64        `json:"lng,omitempty"`
    Paused           bool            `json:"paused"`
    Delivery         *bool           `json:"delivery,omitempty"` // nil means enabled
    AssignedDriverID *string         `json:"assignedDriverId,omitempty"`
    Schedule         map[string]bool `json:"schedule,omitempty"` // weekday -> available; nil means every day
}

// Name returns the display name with the CRM's "(Unnamed)" fallback.
func (c Client) Name() string {
    n := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
    if n == "" {
        return "(Unnamed)"
    }
    return n
}

// DeliveryEnabled treats a missing delivery flag as enabled.
func (c Client) DeliveryEnabled() bool {
    return c.Delivery == nil || *c.Delivery
}

// Order is a scheduled delivery obligation. The routing core only derives
// eligibility and delivery-date display from it.
type Order struct {
    ID                    string    `json:"id"`
    ClientID              string    `json:"clientId"`
    Status                string    `json:"status"`
    DeliveryDay           string    `json:"deliveryDay,omitempty"`
    ScheduledDeliveryDate string    `json:"scheduledDeliveryDate,omitempty"` // YYYY-MM-DD
    CreatedAt             time.Time `json:"createdAt"`
}

// UpcomingOrder mirrors Order but lives in the upcoming_orders table and
// only counts as active while status is "scheduled".
type UpcomingOrder struct {
    ID                    string    `json:"id"`
    ClientID              string    `json:"clientId"`
    Status                string    `json:"status"`
    DeliveryDay           string    `json:"deliveryDay,omitempty"`
    ScheduledDeliveryDate string    `json:"scheduledDeliveryDate,omitempty"`
    CreatedAt             time.Time `json:"createdAt"`
}

// Stop is one delivery visit for one client on one day (or dated delivery).
// Name/address/phone/coordinates are denormalized snapshots taken at creation;
// readers must prefer the live client record (see routing.HydrateStop).
type Stop struct {
    ID               string    `json:"id"`
    ClientID         *string   `json:"clientId,omitempty"` // legacy rows may lack it
    Day              string    `json:"day"`
    DeliveryDate     string    `json:"deliveryDate,omitempty"`
    Name             string    `json:"name"`
    Street           string    `json:"street,omitempty"`
    Apt              string    `json:"apt,omitempty"`
    City             string    `json:"city,omitempty"`
    State            string    `json:"state,omitempty"`
    Zip              string    `json:"zip,omitempty"`
    Phone            string    `json:"phone,omitempty"`
    Dislikes         string    `json:"dislikes,omitempty"`
    Lat              *float64  `json:"lat,omitempty"`
    Lng              *float64  `json:"lng,omitempty"`
    Completed        bool      `json:"completed"`
    ProofURL         string    `json:"proofUrl,omitempty"`
    AssignedDriverID *string   `json:"assignedDriverId,omitempty"`
    OrderID          *string   `json:"orderId,omitempty"`
    OrderDate        string    `json:"orderDate,omitempty"` // resolved at hydration, not persisted
    CreatedAt        time.Time `json:"createdAt"`
}

// Driver is a named, day-scoped route container. Seq is assigned at creation
// from the numeric suffix of the name so sorting never re-parses names;
// "Driver 0" has Seq 0 and always sorts first.
type Driver struct {
    ID        string    `json:"id"`
    Name      string    `json:"name"`
    Seq       int       `json:"seq"`
    Day       string    `json:"day"` // weekday or "all"
    Color     string    `json:"color"`
    StopIDs   []string  `json:"stopIds"` // legacy embedded ordering
    CreatedAt time.Time `json:"createdAt"`
}

// LegacyRoute is the old routes table: same shape as Driver but with no day
// scoping. Rows are treated as applicable to every day.
type LegacyRoute struct {
    ID      string   `json:"id"`
    Name    string   `json:"name"`
    Seq     int      `json:"seq"`
    Color   string   `json:"color"`
    StopIDs []string `json:"stopIds"`
}

// RouteOrderEntry is one (driver, client, position) row of the canonical
// route ordering. Positions are dense and zero-based per driver.
type RouteOrderEntry struct {
    DriverID string `json:"driverId"`
    ClientID string `json:"clientId"`
    Position int    `json:"position"`
}

// RouteSnapshotEntry is one driver's assignment inside a RouteRun snapshot.
type RouteSnapshotEntry struct {
    DriverID   string   `json:"driverId"`
    DriverName string   `json:"driverName"`
    Color      string   `json:"color"`
    StopIDs    []string `json:"stopIds"`
}

// RouteRun is an immutable record of all drivers' assignments for a day at
// the moment routes were (re)generated. Inserted, never updated.
type RouteRun struct {
    ID        string               `json:"id"`
    Day       string               `json:"day"`
    CreatedAt time.Time            `json:"createdAt"`
    Snapshot  []RouteSnapshotEntry `json:"snapshot"`
}

// Request / response shapes for the HTTP surface.

type ReconcileRequest struct {
    Day string `json:"day"`
}

// SkippedClient explains why an ineligible client did not get a stop.
type SkippedClient struct {
    ClientID string `json:"clientId"`
    Name     string `json:"name,omitempty"`
    Reason   string `json:"reason"`
}

type ReconcileResult struct {
    StopsCreated int             `json:"stopsCreated"`
    Skipped      []SkippedClient `json:"skipped"`
}

// DriverRoute is one driver's hydrated view for the routes endpoint.
type DriverRoute struct {
    DriverID       string `json:"driverId"`
    DriverName     string `json:"driverName"`
    Color          string `json:"color"`
    Stops          []Stop `json:"stops"`
    TotalStops     int    `json:"totalStops"`
    CompletedStops int    `json:"completedStops"`
}

// RoutesView is the full dispatcher view for a day.
type RoutesView struct {
    Routes            []DriverRoute   `json:"routes"`
    Unrouted          []Stop          `json:"unrouted"`
    UsersWithoutStops []SkippedClient `json:"usersWithoutStops"`
}

// MobileRouteSummary is the lightweight per-driver shape for mobile clients.
type MobileRouteSummary struct {
    ID             string   `json:"id"`
    Name           string   `json:"name"`
    Color          string   `json:"color"`
    StopIDs        []string `json:"stopIds"`
    TotalStops     int      `json:"totalStops"`
    CompletedStops int      `json:"completedStops"`
}

type ReorganizeRequest struct {
    Day          string `json:"day"`
    DriverID     string `json:"driverId,omitempty"`
    DeliveryDate string `json:"deliveryDate,omitempty"`
    Improve      string `json:"improve,omitempty"` // "2opt" enables the improvement pass
}

type ReorganizeResult struct {
    DriversOptimized int `json:"driversOptimized"`
    StopsReordered   int `json:"stopsReordered"`
}

type GenerateRequest struct {
    Day         string `json:"day"`
    DriverCount int    `json:"driverCount"`
}

type GenerateResult struct {
    RunID          string `json:"runId"`
    DriversCreated int    `json:"driversCreated"`
    StopsAssigned  int    `json:"stopsAssigned"`
}

// Subscription is an outbound webhook registration.
type Subscription struct {
    ID     string   `json:"id"`
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret,omitempty"`
}

type SubscriptionRequest struct {
    URL    string   `json:"url"`
    Events []string `json:"events"`
    Secret string   `json:"secret"`
}
