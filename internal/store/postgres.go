package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "mealroutes/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir executes every .sql file in dir in lexical order. Dev helper;
// production schema changes go through real migration tooling.
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, n := range names {
        sqlb, err := os.ReadFile(filepath.Join(dir, n))
        if err != nil { return err }
        if _, err := p.db.Exec(string(sqlb)); err != nil { return fmt.Errorf("migrate %s: %w", n, err) }
    }
    return nil
}

// Clients

func (p *Postgres) ListClients(ctx context.Context) ([]model.Client, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, first_name, last_name, street, apt, city, state, zip, phone, dislikes, lat, lng, paused, delivery, assigned_driver_id::text, schedule FROM clients ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Client{}
    for rows.Next() {
        c, err := scanClient(rows)
        if err != nil { return nil, err }
        out = append(out, c)
    }
    return out, rows.Err()
}

func (p *Postgres) GetClient(ctx context.Context, id string) (model.Client, error) {
    row := p.db.QueryRowContext(ctx, `SELECT id::text, first_name, last_name, street, apt, city, state, zip, phone, dislikes, lat, lng, paused, delivery, assigned_driver_id::text, schedule FROM clients WHERE id=$1`, id)
    c, err := scanClient(row)
    if errors.Is(err, sql.ErrNoRows) { return model.Client{}, ErrNotFound }
    return c, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanClient(r rowScanner) (model.Client, error) {
    var c model.Client
    var first, last, street, apt, city, state, zip, phone, dislikes sql.NullString
    var lat, lng sql.NullFloat64
    var delivery sql.NullBool
    var driverID sql.NullString
    var schedule []byte
    if err := r.Scan(&c.ID, &first, &last, &street, &apt, &city, &state, &zip, &phone, &dislikes, &lat, &lng, &c.Paused, &delivery, &driverID, &schedule); err != nil {
        return c, err
    }
    c.FirstName, c.LastName = first.String, last.String
    c.Street, c.Apt, c.City, c.State, c.Zip = street.String, apt.String, city.String, state.String, zip.String
    c.Phone, c.Dislikes = phone.String, dislikes.String
    if lat.Valid { v := lat.Float64; c.Lat = &v }
    if lng.Valid { v := lng.Float64; c.Lng = &v }
    if delivery.Valid { v := delivery.Bool; c.Delivery = &v }
    if driverID.Valid { v := driverID.String; c.AssignedDriverID = &v }
    if len(schedule) > 0 { _ = json.Unmarshal(schedule, &c.Schedule) }
    return c, nil
}

func (p *Postgres) SetClientDriver(ctx context.Context, clientID string, driverID *string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE clients SET assigned_driver_id=$1 WHERE id=$2`, driverID, clientID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Orders

func (p *Postgres) ListOrders(ctx context.Context) ([]model.Order, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, client_id::text, status, delivery_day, scheduled_delivery_date, created_at FROM orders ORDER BY created_at DESC`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Order{}
    for rows.Next() {
        var o model.Order
        var day sql.NullString
        var date sql.NullTime
        if err := rows.Scan(&o.ID, &o.ClientID, &o.Status, &day, &date, &o.CreatedAt); err != nil { return nil, err }
        o.DeliveryDay = day.String
        if date.Valid { o.ScheduledDeliveryDate = date.Time.Format("2006-01-02") }
        out = append(out, o)
    }
    return out, rows.Err()
}

func (p *Postgres) ListUpcomingOrders(ctx context.Context) ([]model.UpcomingOrder, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, client_id::text, status, delivery_day, scheduled_delivery_date, created_at FROM upcoming_orders ORDER BY created_at DESC`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.UpcomingOrder{}
    for rows.Next() {
        var o model.UpcomingOrder
        var day sql.NullString
        var date sql.NullTime
        if err := rows.Scan(&o.ID, &o.ClientID, &o.Status, &day, &date, &o.CreatedAt); err != nil { return nil, err }
        o.DeliveryDay = day.String
        if date.Valid { o.ScheduledDeliveryDate = date.Time.Format("2006-01-02") }
        out = append(out, o)
    }
    return out, rows.Err()
}

// Stops

func (p *Postgres) ListStops(ctx context.Context, day, deliveryDate string) ([]model.Stop, error) {
    day = strings.ToLower(day)
    var rows *sql.Rows
    var err error
    if day == "" || day == "all" {
        rows, err = p.db.QueryContext(ctx, `SELECT `+stopCols+` FROM stops ORDER BY id`)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+stopCols+` FROM stops WHERE lower(day)=$1 OR lower(day)='all' OR ($2 <> '' AND delivery_date::text=$2) ORDER BY id`, day, deliveryDate)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Stop{}
    for rows.Next() {
        s, err := scanStop(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

const stopCols = `id::text, client_id::text, day, delivery_date, name, street, apt, city, state, zip, phone, dislikes, lat, lng, completed, proof_url, assigned_driver_id::text, order_id::text, created_at`

func scanStop(r rowScanner) (model.Stop, error) {
    var s model.Stop
    var clientID, street, apt, city, state, zip, phone, dislikes, proof, driverID, orderID sql.NullString
    var dateT sql.NullTime
    var lat, lng sql.NullFloat64
    if err := r.Scan(&s.ID, &clientID, &s.Day, &dateT, &s.Name, &street, &apt, &city, &state, &zip, &phone, &dislikes, &lat, &lng, &s.Completed, &proof, &driverID, &orderID, &s.CreatedAt); err != nil {
        return s, err
    }
    if clientID.Valid { v := clientID.String; s.ClientID = &v }
    if dateT.Valid { s.DeliveryDate = dateT.Time.Format("2006-01-02") }
    s.Street, s.Apt, s.City, s.State, s.Zip = street.String, apt.String, city.String, state.String, zip.String
    s.Phone, s.Dislikes, s.ProofURL = phone.String, dislikes.String, proof.String
    if lat.Valid { v := lat.Float64; s.Lat = &v }
    if lng.Valid { v := lng.Float64; s.Lng = &v }
    if driverID.Valid { v := driverID.String; s.AssignedDriverID = &v }
    if orderID.Valid { v := orderID.String; s.OrderID = &v }
    return s, nil
}

func (p *Postgres) UpsertStops(ctx context.Context, stops []model.Stop) (int, error) {
    if len(stops) == 0 { return 0, nil }
    created := 0
    // One round trip per row: each row upserts independently so a
    // conflicting client refreshes its own row and never aborts the rest.
    for _, s := range stops {
        if s.ID == "" { s.ID = uuid.New().String() }
        var date any
        if s.DeliveryDate != "" { date = s.DeliveryDate }
        var conflict string
        if s.DeliveryDate != "" {
            conflict = `ON CONFLICT (client_id, delivery_date) WHERE delivery_date IS NOT NULL`
        } else {
            conflict = `ON CONFLICT (client_id, day) WHERE delivery_date IS NULL`
        }
        // xmax = 0 distinguishes a fresh insert from a conflict update.
        var inserted bool
        err := p.db.QueryRowContext(ctx, `INSERT INTO stops (id, client_id, day, delivery_date, name, street, apt, city, state, zip, phone, dislikes, lat, lng, completed, assigned_driver_id, order_id)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,false,$15,$16)
            `+conflict+` DO UPDATE SET name=EXCLUDED.name, street=EXCLUDED.street, apt=EXCLUDED.apt, city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip, phone=EXCLUDED.phone, dislikes=EXCLUDED.dislikes,
                lat=COALESCE(EXCLUDED.lat, stops.lat), lng=COALESCE(EXCLUDED.lng, stops.lng),
                assigned_driver_id=COALESCE(EXCLUDED.assigned_driver_id, stops.assigned_driver_id)
            RETURNING (xmax = 0)`,
            s.ID, s.ClientID, strings.ToLower(s.Day), date, s.Name, nullIfEmpty(s.Street), nullIfEmpty(s.Apt), nullIfEmpty(s.City), nullIfEmpty(s.State), nullIfEmpty(s.Zip), nullIfEmpty(s.Phone), nullIfEmpty(s.Dislikes), s.Lat, s.Lng, s.AssignedDriverID, s.OrderID).Scan(&inserted)
        if err != nil { return created, err }
        if inserted { created++ }
    }
    return created, nil
}

func (p *Postgres) SetStopCompleted(ctx context.Context, stopID string, completed bool, proofURL string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE stops SET completed=$1, proof_url=COALESCE(NULLIF($2,''), proof_url) WHERE id=$3`, completed, proofURL, stopID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) SetStopDriver(ctx context.Context, stopID string, driverID *string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE stops SET assigned_driver_id=$1 WHERE id=$2`, driverID, stopID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) ClearDriverStops(ctx context.Context, driverID string) (int, error) {
    res, err := p.db.ExecContext(ctx, `UPDATE stops SET assigned_driver_id=NULL WHERE assigned_driver_id=$1`, driverID)
    if err != nil { return 0, err }
    n, _ := res.RowsAffected()
    return int(n), nil
}

// Drivers

func (p *Postgres) ListDrivers(ctx context.Context, day string) ([]model.Driver, error) {
    day = strings.ToLower(day)
    var rows *sql.Rows
    var err error
    if day == "" || day == "all" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, seq, day, color, stop_ids, created_at FROM drivers ORDER BY seq, id`)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, name, seq, day, color, stop_ids, created_at FROM drivers WHERE lower(day)=$1 OR lower(day)='all' ORDER BY seq, id`, day)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Driver{}
    for rows.Next() {
        var d model.Driver
        var color sql.NullString
        var stopIDs []byte
        if err := rows.Scan(&d.ID, &d.Name, &d.Seq, &d.Day, &color, &stopIDs, &d.CreatedAt); err != nil { return nil, err }
        d.Color = color.String
        if len(stopIDs) > 0 { _ = json.Unmarshal(stopIDs, &d.StopIDs) }
        if d.StopIDs == nil { d.StopIDs = []string{} }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) GetDriver(ctx context.Context, id string) (model.Driver, error) {
    var d model.Driver
    var color sql.NullString
    var stopIDs []byte
    row := p.db.QueryRowContext(ctx, `SELECT id::text, name, seq, day, color, stop_ids, created_at FROM drivers WHERE id=$1`, id)
    if err := row.Scan(&d.ID, &d.Name, &d.Seq, &d.Day, &color, &stopIDs, &d.CreatedAt); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return d, ErrNotFound }
        return d, err
    }
    d.Color = color.String
    if len(stopIDs) > 0 { _ = json.Unmarshal(stopIDs, &d.StopIDs) }
    if d.StopIDs == nil { d.StopIDs = []string{} }
    return d, nil
}

func (p *Postgres) CreateDriver(ctx context.Context, d model.Driver) error {
    if d.ID == "" { d.ID = uuid.New().String() }
    ids, _ := json.Marshal(d.StopIDs)
    _, err := p.db.ExecContext(ctx, `INSERT INTO drivers (id, name, seq, day, color, stop_ids) VALUES ($1,$2,$3,$4,$5,$6)`,
        d.ID, d.Name, d.Seq, strings.ToLower(d.Day), d.Color, ids)
    return err
}

func (p *Postgres) DeleteDriver(ctx context.Context, id string) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()
    if _, err := tx.ExecContext(ctx, `DELETE FROM driver_route_order WHERE driver_id=$1`, id); err != nil { return err }
    res, err := tx.ExecContext(ctx, `DELETE FROM drivers WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return tx.Commit()
}

func (p *Postgres) SetDriverStopIDs(ctx context.Context, driverID string, stopIDs []string) error {
    if stopIDs == nil { stopIDs = []string{} }
    ids, _ := json.Marshal(stopIDs)
    res, err := p.db.ExecContext(ctx, `UPDATE drivers SET stop_ids=$1 WHERE id=$2`, ids, driverID)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) ListLegacyRoutes(ctx context.Context) ([]model.LegacyRoute, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, seq, color, stop_ids FROM routes ORDER BY seq, id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.LegacyRoute{}
    for rows.Next() {
        var r model.LegacyRoute
        var color sql.NullString
        var stopIDs []byte
        if err := rows.Scan(&r.ID, &r.Name, &r.Seq, &color, &stopIDs); err != nil { return nil, err }
        r.Color = color.String
        if len(stopIDs) > 0 { _ = json.Unmarshal(stopIDs, &r.StopIDs) }
        if r.StopIDs == nil { r.StopIDs = []string{} }
        out = append(out, r)
    }
    return out, rows.Err()
}

// Route order

func (p *Postgres) ListRouteOrders(ctx context.Context, driverIDs []string) ([]model.RouteOrderEntry, error) {
    if len(driverIDs) == 0 { return []model.RouteOrderEntry{}, nil }
    ids, _ := json.Marshal(driverIDs)
    rows, err := p.db.QueryContext(ctx, `SELECT driver_id::text, client_id::text, position FROM driver_route_order WHERE driver_id::text IN (SELECT jsonb_array_elements_text($1::jsonb)) ORDER BY driver_id, position, client_id`, ids)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.RouteOrderEntry{}
    for rows.Next() {
        var e model.RouteOrderEntry
        if err := rows.Scan(&e.DriverID, &e.ClientID, &e.Position); err != nil { return nil, err }
        out = append(out, e)
    }
    return out, rows.Err()
}

func (p *Postgres) SetRouteOrder(ctx context.Context, driverID string, clientIDs []string) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()
    if _, err := tx.ExecContext(ctx, `DELETE FROM driver_route_order WHERE driver_id=$1`, driverID); err != nil { return err }
    for i, cid := range clientIDs {
        if _, err := tx.ExecContext(ctx, `INSERT INTO driver_route_order (driver_id, client_id, position) VALUES ($1,$2,$3)`, driverID, cid, i); err != nil { return err }
    }
    return tx.Commit()
}

// Route runs

func (p *Postgres) InsertRouteRun(ctx context.Context, run model.RouteRun) (model.RouteRun, error) {
    if run.ID == "" { run.ID = uuid.New().String() }
    if run.CreatedAt.IsZero() { run.CreatedAt = time.Now() }
    snap, _ := json.Marshal(run.Snapshot)
    _, err := p.db.ExecContext(ctx, `INSERT INTO route_runs (id, day, created_at, snapshot) VALUES ($1,$2,$3,$4)`,
        run.ID, strings.ToLower(run.Day), run.CreatedAt, snap)
    return run, err
}

func (p *Postgres) ListRouteRuns(ctx context.Context, day string, limit int) ([]model.RouteRun, error) {
    if limit <= 0 || limit > 100 { limit = 10 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, day, created_at, snapshot FROM route_runs WHERE lower(day)=$1 ORDER BY created_at DESC LIMIT $2`, strings.ToLower(day), limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.RouteRun{}
    for rows.Next() {
        var r model.RouteRun
        var snap []byte
        if err := rows.Scan(&r.ID, &r.Day, &r.CreatedAt, &snap); err != nil { return nil, err }
        if len(snap) > 0 { _ = json.Unmarshal(snap, &r.Snapshot) }
        out = append(out, r)
    }
    return out, rows.Err()
}

// Subscriptions & webhook deliveries

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`, id, req.URL, ev, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        if len(ev) > 0 { _ = json.Unmarshal(ev, &s.Events) }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE events @> $1::jsonb`, fmt.Sprintf("[%q]", eventType))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, err }
        if len(ev) > 0 { _ = json.Unmarshal(ev, &s.Events) }
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at) VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`,
        id, subscriptionID, eventType, url, secret, payload)
    return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, subscription_id::text, event_type, url, secret, payload, status, attempts FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1, response_code=$1, latency_ms=$2, delivered_at=now() WHERE id=$3`, responseCode, latencyMs, id)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3, next_attempt_at=$4 WHERE id=$5`, lastError, responseCode, latencyMs, nextAttemptAt, id)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$1, response_code=$2, latency_ms=$3 WHERE id=$4`, lastError, responseCode, latencyMs, id)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]map[string]any, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, last_error FROM webhook_deliveries WHERE status=$1 ORDER BY next_attempt_at DESC LIMIT $2`, status, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, event_type, status, attempts, url, last_error FROM webhook_deliveries ORDER BY next_attempt_at DESC LIMIT $1`, limit)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var id, et, st, url string
        var attempts int
        var lastErr sql.NullString
        if err := rows.Scan(&id, &et, &st, &attempts, &url, &lastErr); err != nil { return nil, err }
        item := map[string]any{"id": id, "eventType": et, "status": st, "attempts": attempts, "url": url}
        if lastErr.Valid && lastErr.String != "" { item["lastError"] = lastErr.String }
        out = append(out, item)
    }
    return out, rows.Err()
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
