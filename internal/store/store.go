package store

import (
    "context"
    "errors"
    "time"

    "mealroutes/internal/model"
)

// Store is the persistence interface used by the routing service and API.
//
// Clients and orders are owned by the CRM side; the routing core reads them
// and writes back only the assigned driver on clients. Stops, drivers, route
// order rows, and route runs are owned here.
type Store interface {
    Ping(ctx context.Context) error

    // Clients (read-mostly; narrow write-back contract)
    ListClients(ctx context.Context) ([]model.Client, error)
    GetClient(ctx context.Context, id string) (model.Client, error)
    SetClientDriver(ctx context.Context, clientID string, driverID *string) error

    // Orders (read-only; eligibility + delivery-date hydration)
    ListOrders(ctx context.Context) ([]model.Order, error)
    ListUpcomingOrders(ctx context.Context) ([]model.UpcomingOrder, error)

    // Stops
    // ListStops returns candidate stops for a day view: stops scoped to the
    // day itself, to "all", or to the given delivery date. An empty or "all"
    // day returns every stop.
    ListStops(ctx context.Context, day, deliveryDate string) ([]model.Stop, error)
    // UpsertStops inserts stops idempotently. A conflicting row for the same
    // (client, day) or (client, delivery date) is refreshed in place and not
    // counted as created.
    UpsertStops(ctx context.Context, stops []model.Stop) (created int, err error)
    SetStopCompleted(ctx context.Context, stopID string, completed bool, proofURL string) error
    SetStopDriver(ctx context.Context, stopID string, driverID *string) error
    // ClearDriverStops nulls assigned_driver_id on every stop pointing at the
    // driver and returns how many rows were touched. Stops are never deleted
    // by the routing core.
    ClearDriverStops(ctx context.Context, driverID string) (int, error)

    // Drivers
    // ListDrivers returns drivers scoped to the day plus "all"-day drivers.
    // An empty or "all" day returns every driver.
    ListDrivers(ctx context.Context, day string) ([]model.Driver, error)
    GetDriver(ctx context.Context, id string) (model.Driver, error)
    CreateDriver(ctx context.Context, d model.Driver) error
    DeleteDriver(ctx context.Context, id string) error
    SetDriverStopIDs(ctx context.Context, driverID string, stopIDs []string) error
    // ListLegacyRoutes returns the routes compatibility table. Rows carry no
    // day scoping and apply to every day's view.
    ListLegacyRoutes(ctx context.Context) ([]model.LegacyRoute, error)

    // Route order (canonical write target for stop ordering)
    ListRouteOrders(ctx context.Context, driverIDs []string) ([]model.RouteOrderEntry, error)
    // SetRouteOrder rewrites the full rowset for a driver with dense
    // positions 0..n-1. Delete/replace, never incremental.
    SetRouteOrder(ctx context.Context, driverID string, clientIDs []string) error

    // Route runs (append-only snapshot log)
    InsertRouteRun(ctx context.Context, run model.RouteRun) (model.RouteRun, error)
    ListRouteRuns(ctx context.Context, day string, limit int) ([]model.RouteRun, error)

    // Webhook subscriptions & deliveries
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
    DeleteSubscription(ctx context.Context, id string) error
    GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
    EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")
