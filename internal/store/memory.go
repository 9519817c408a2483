package store

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"

    "mealroutes/internal/model"
)

// Memory is a mutex-guarded in-memory store used when no DATABASE_URL is set
// and by the handler tests.
type Memory struct {
    mu          sync.Mutex
    clients     map[string]model.Client
    orders      map[string]model.Order
    upcoming    map[string]model.UpcomingOrder
    stops       map[string]model.Stop
    stopKeys    map[string]string // uniqueness key -> stop id
    drivers     map[string]model.Driver
    legacy      map[string]model.LegacyRoute
    routeOrder  map[string][]model.RouteOrderEntry // driverId -> rows
    runs        []model.RouteRun
    subs        map[string]model.Subscription
    deliveries  map[string]*memDelivery
    deliveryIDs []string
}

type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func NewMemory() *Memory {
    return &Memory{
        clients:    map[string]model.Client{},
        orders:     map[string]model.Order{},
        upcoming:   map[string]model.UpcomingOrder{},
        stops:      map[string]model.Stop{},
        stopKeys:   map[string]string{},
        drivers:    map[string]model.Driver{},
        legacy:     map[string]model.LegacyRoute{},
        routeOrder: map[string][]model.RouteOrderEntry{},
        subs:       map[string]model.Subscription{},
        deliveries: map[string]*memDelivery{},
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

// Seed helpers for tests and local development. Clients and orders are owned
// by the CRM in production; there is deliberately no HTTP surface for these.

func (m *Memory) SeedClient(c model.Client) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if c.ID == "" {
        c.ID = uuid.New().String()
    }
    m.clients[c.ID] = c
}

func (m *Memory) SeedOrder(o model.Order) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if o.ID == "" {
        o.ID = uuid.New().String()
    }
    m.orders[o.ID] = o
}

func (m *Memory) SeedUpcomingOrder(o model.UpcomingOrder) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if o.ID == "" {
        o.ID = uuid.New().String()
    }
    m.upcoming[o.ID] = o
}

func (m *Memory) SeedLegacyRoute(r model.LegacyRoute) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if r.ID == "" {
        r.ID = uuid.New().String()
    }
    m.legacy[r.ID] = r
}

// Clients

func (m *Memory) ListClients(ctx context.Context) ([]model.Client, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Client, 0, len(m.clients))
    for _, c := range m.clients {
        out = append(out, c)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) GetClient(ctx context.Context, id string) (model.Client, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    c, ok := m.clients[id]
    if !ok {
        return model.Client{}, ErrNotFound
    }
    return c, nil
}

func (m *Memory) SetClientDriver(ctx context.Context, clientID string, driverID *string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    c, ok := m.clients[clientID]
    if !ok {
        return ErrNotFound
    }
    c.AssignedDriverID = driverID
    m.clients[clientID] = c
    return nil
}

// Orders

func (m *Memory) ListOrders(ctx context.Context) ([]model.Order, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Order, 0, len(m.orders))
    for _, o := range m.orders {
        out = append(out, o)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) ListUpcomingOrders(ctx context.Context) ([]model.UpcomingOrder, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.UpcomingOrder, 0, len(m.upcoming))
    for _, o := range m.upcoming {
        out = append(out, o)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

// Stops

func stopKey(s model.Stop) string {
    if s.ClientID == nil || *s.ClientID == "" {
        return ""
    }
    if s.DeliveryDate != "" {
        return *s.ClientID + "|date|" + s.DeliveryDate
    }
    return *s.ClientID + "|day|" + strings.ToLower(s.Day)
}

func (m *Memory) ListStops(ctx context.Context, day, deliveryDate string) ([]model.Stop, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    day = strings.ToLower(day)
    out := []model.Stop{}
    for _, s := range m.stops {
        if day == "" || day == "all" ||
            strings.ToLower(s.Day) == day || strings.ToLower(s.Day) == "all" ||
            (deliveryDate != "" && s.DeliveryDate == deliveryDate) {
            out = append(out, s)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) UpsertStops(ctx context.Context, stops []model.Stop) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    created := 0
    for _, s := range stops {
        if s.ID == "" {
            s.ID = uuid.New().String()
        }
        if s.CreatedAt.IsZero() {
            s.CreatedAt = time.Now()
        }
        key := stopKey(s)
        if key != "" {
            if existingID, ok := m.stopKeys[key]; ok {
                // Conflicting row already exists: refresh the snapshot fields
                // in place, keep the original identity. Not counted as created.
                cur := m.stops[existingID]
                cur.Name = s.Name
                cur.Street, cur.Apt, cur.City, cur.State, cur.Zip = s.Street, s.Apt, s.City, s.State, s.Zip
                cur.Phone = s.Phone
                cur.Dislikes = s.Dislikes
                if s.Lat != nil && s.Lng != nil {
                    cur.Lat, cur.Lng = s.Lat, s.Lng
                }
                if s.AssignedDriverID != nil {
                    cur.AssignedDriverID = s.AssignedDriverID
                }
                m.stops[existingID] = cur
                continue
            }
            m.stopKeys[key] = s.ID
        }
        m.stops[s.ID] = s
        created++
    }
    return created, nil
}

func (m *Memory) SetStopCompleted(ctx context.Context, stopID string, completed bool, proofURL string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    s, ok := m.stops[stopID]
    if !ok {
        return ErrNotFound
    }
    s.Completed = completed
    if proofURL != "" {
        s.ProofURL = proofURL
    }
    m.stops[stopID] = s
    return nil
}

func (m *Memory) SetStopDriver(ctx context.Context, stopID string, driverID *string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    s, ok := m.stops[stopID]
    if !ok {
        return ErrNotFound
    }
    s.AssignedDriverID = driverID
    m.stops[stopID] = s
    return nil
}

func (m *Memory) ClearDriverStops(ctx context.Context, driverID string) (int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    n := 0
    for id, s := range m.stops {
        if s.AssignedDriverID != nil && *s.AssignedDriverID == driverID {
            s.AssignedDriverID = nil
            m.stops[id] = s
            n++
        }
    }
    return n, nil
}

// Drivers

func (m *Memory) ListDrivers(ctx context.Context, day string) ([]model.Driver, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    day = strings.ToLower(day)
    out := []model.Driver{}
    for _, d := range m.drivers {
        if day == "" || day == "all" || strings.ToLower(d.Day) == day || strings.ToLower(d.Day) == "all" {
            out = append(out, d)
        }
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Seq != out[j].Seq {
            return out[i].Seq < out[j].Seq
        }
        return out[i].ID < out[j].ID
    })
    return out, nil
}

func (m *Memory) GetDriver(ctx context.Context, id string) (model.Driver, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    d, ok := m.drivers[id]
    if !ok {
        return model.Driver{}, ErrNotFound
    }
    return d, nil
}

func (m *Memory) CreateDriver(ctx context.Context, d model.Driver) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if d.ID == "" {
        d.ID = uuid.New().String()
    }
    if d.CreatedAt.IsZero() {
        d.CreatedAt = time.Now()
    }
    m.drivers[d.ID] = d
    return nil
}

func (m *Memory) DeleteDriver(ctx context.Context, id string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, ok := m.drivers[id]; !ok {
        return ErrNotFound
    }
    delete(m.drivers, id)
    delete(m.routeOrder, id)
    return nil
}

func (m *Memory) SetDriverStopIDs(ctx context.Context, driverID string, stopIDs []string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    d, ok := m.drivers[driverID]
    if !ok {
        return ErrNotFound
    }
    d.StopIDs = append([]string(nil), stopIDs...)
    m.drivers[driverID] = d
    return nil
}

func (m *Memory) ListLegacyRoutes(ctx context.Context) ([]model.LegacyRoute, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.LegacyRoute, 0, len(m.legacy))
    for _, r := range m.legacy {
        out = append(out, r)
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Seq != out[j].Seq {
            return out[i].Seq < out[j].Seq
        }
        return out[i].ID < out[j].ID
    })
    return out, nil
}

// Route order

func (m *Memory) ListRouteOrders(ctx context.Context, driverIDs []string) ([]model.RouteOrderEntry, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := []model.RouteOrderEntry{}
    for _, id := range driverIDs {
        out = append(out, m.routeOrder[id]...)
    }
    return out, nil
}

func (m *Memory) SetRouteOrder(ctx context.Context, driverID string, clientIDs []string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    rows := make([]model.RouteOrderEntry, 0, len(clientIDs))
    for i, cid := range clientIDs {
        rows = append(rows, model.RouteOrderEntry{DriverID: driverID, ClientID: cid, Position: i})
    }
    m.routeOrder[driverID] = rows
    return nil
}

// Route runs

func (m *Memory) InsertRouteRun(ctx context.Context, run model.RouteRun) (model.RouteRun, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if run.ID == "" {
        run.ID = uuid.New().String()
    }
    if run.CreatedAt.IsZero() {
        run.CreatedAt = time.Now()
    }
    m.runs = append(m.runs, run)
    return run, nil
}

func (m *Memory) ListRouteRuns(ctx context.Context, day string, limit int) ([]model.RouteRun, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    day = strings.ToLower(day)
    out := []model.RouteRun{}
    for i := len(m.runs) - 1; i >= 0; i-- {
        r := m.runs[i]
        if day == "" || strings.ToLower(r.Day) == day {
            out = append(out, r)
            if limit > 0 && len(out) >= limit {
                break
            }
        }
    }
    return out, nil
}

// Subscriptions & webhook deliveries

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    sub := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[sub.ID] = sub
    return sub, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := make([]model.Subscription, 0, len(m.subs))
    for _, s := range m.subs {
        out = append(out, s)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, ok := m.subs[id]; !ok {
        return ErrNotFound
    }
    delete(m.subs, id)
    return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, s := range m.subs {
        for _, e := range s.Events {
            if e == eventType {
                out = append(out, s)
                break
            }
        }
    }
    return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    id := uuid.New().String()
    m.deliveries[id] = &memDelivery{
        WebhookDelivery: WebhookDelivery{ID: id, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
        NextAttemptAt:   time.Now(),
    }
    m.deliveryIDs = append(m.deliveryIDs, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d == nil {
            continue
        }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit {
                break
            }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil {
        return nil
    }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil {
            d.NextAttemptAt = *nextAttemptAt
        } else {
            d.NextAttemptAt = time.Now().Add(time.Minute)
        }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if d := m.deliveries[id]; d != nil {
        d.Status = "failed"
        d.LastError = lastError
        d.ResponseCode = responseCode
        d.LatencyMs = latencyMs
    }
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    out := []map[string]any{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d == nil {
            continue
        }
        if status != "" && d.Status != status {
            continue
        }
        item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
        if d.LastError != "" {
            item["lastError"] = d.LastError
        }
        out = append(out, item)
        if limit > 0 && len(out) >= limit {
            break
        }
    }
    return out, nil
}
