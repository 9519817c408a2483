// Package routing implements stop reconciliation, route ordering, and the
// driver route views built from them.
package routing

import (
    "context"
    "sort"
    "strings"
    "sync"

    "github.com/google/uuid"

    "mealroutes/internal/config"
    "mealroutes/internal/metrics"
    "mealroutes/internal/model"
    "mealroutes/internal/store"
)

// Service owns the routing core. All operations are request-scoped; the
// service keeps no state between calls beyond the store handle.
type Service struct {
    Store store.Store
    Cfg   config.Config
    // Notify, when set, is called after route state changes. The API layer
    // fans it out to stream subscribers and the webhook queue.
    Notify func(ctx context.Context, day, event string, payload map[string]any)
}

func NewService(st store.Store, cfg config.Config) *Service {
    return &Service{Store: st, Cfg: cfg}
}

func (s *Service) notify(ctx context.Context, day, event string, payload map[string]any) {
    if s.Notify != nil {
        s.Notify(ctx, day, event, payload)
    }
}

// dayData is one request's batch load. Independent reads are issued
// concurrently; route-order rows wait on the driver list.
type dayData struct {
    clients    []model.Client
    clientByID map[string]model.Client
    stops      []model.Stop
    drivers    []model.Driver
    legacy     []model.LegacyRoute
    entries    []model.RouteOrderEntry
    ix         *OrderIndex
    view       *RouteOrderView
}

func (s *Service) loadDay(ctx context.Context, day, deliveryDate string) (*dayData, error) {
    d := &dayData{}
    var orders []model.Order
    var upcoming []model.UpcomingOrder
    var errs [5]error
    var wg sync.WaitGroup
    wg.Add(5)
    go func() { defer wg.Done(); d.clients, errs[0] = s.Store.ListClients(ctx) }()
    go func() { defer wg.Done(); orders, errs[1] = s.Store.ListOrders(ctx) }()
    go func() { defer wg.Done(); upcoming, errs[2] = s.Store.ListUpcomingOrders(ctx) }()
    go func() { defer wg.Done(); d.stops, errs[3] = s.Store.ListStops(ctx, day, deliveryDate) }()
    go func() { defer wg.Done(); d.drivers, errs[4] = s.Store.ListDrivers(ctx, day) }()
    wg.Wait()
    for _, err := range errs {
        if err != nil {
            return nil, err
        }
    }
    var err error
    if d.legacy, err = s.Store.ListLegacyRoutes(ctx); err != nil {
        return nil, err
    }
    ids := make([]string, 0, len(d.drivers))
    for _, dr := range d.drivers {
        ids = append(ids, dr.ID)
    }
    if d.entries, err = s.Store.ListRouteOrders(ctx, ids); err != nil {
        return nil, err
    }
    d.clientByID = map[string]model.Client{}
    for _, c := range d.clients {
        d.clientByID[c.ID] = c
    }
    d.ix = NewOrderIndex(orders, upcoming, s.Cfg.Location())
    d.view = NewRouteOrderView(d.entries, d.legacy)
    return d, nil
}

// Reconcile ensures every eligible client has a stop for the day. Safe to
// re-run: a second call right after the first creates nothing.
func (s *Service) Reconcile(ctx context.Context, day, deliveryDate string) (model.ReconcileResult, error) {
    res, _, err := s.reconcile(ctx, day, deliveryDate)
    return res, err
}

func (s *Service) reconcile(ctx context.Context, day, deliveryDate string) (model.ReconcileResult, []model.SkippedClient, error) {
    d, err := s.loadDay(ctx, day, deliveryDate)
    if err != nil {
        return model.ReconcileResult{}, nil, err
    }

    represented := map[string]bool{}
    for _, st := range d.stops {
        if st.ClientID == nil || *st.ClientID == "" {
            continue
        }
        switch {
        case day == "all":
            represented[*st.ClientID] = true
        case deliveryDate != "" && st.DeliveryDate == deliveryDate:
            represented[*st.ClientID] = true
        case strings.EqualFold(st.Day, day) || strings.EqualFold(st.Day, "all"):
            represented[*st.ClientID] = true
        }
    }

    res := model.ReconcileResult{Skipped: []model.SkippedClient{}}
    created := []model.SkippedClient{}
    toInsert := []model.Stop{}
    for _, c := range d.clients {
        if represented[c.ID] {
            continue
        }
        orderID, eligible, reason := Eligibility(c, day, d.ix)
        if !eligible {
            res.Skipped = append(res.Skipped, model.SkippedClient{ClientID: c.ID, Name: c.Name(), Reason: reason})
            metrics.ClientsSkipped.WithLabelValues(skipClass(reason)).Inc()
            continue
        }
        ns := model.Stop{
            ID:               uuid.New().String(),
            ClientID:         ptr(c.ID),
            Day:              day,
            DeliveryDate:     deliveryDate,
            Name:             c.Name(),
            Street:           c.Street,
            Apt:              c.Apt,
            City:             c.City,
            State:            c.State,
            Zip:              c.Zip,
            Phone:            c.Phone,
            Dislikes:         c.Dislikes,
            AssignedDriverID: c.AssignedDriverID,
        }
        if c.Lat != nil && c.Lng != nil {
            ns.Lat, ns.Lng = c.Lat, c.Lng
        }
        if orderID != "" {
            ns.OrderID = &orderID
        }
        toInsert = append(toInsert, ns)
        created = append(created, model.SkippedClient{ClientID: c.ID, Name: c.Name(), Reason: "creating stop now"})
    }

    if len(toInsert) > 0 {
        // Upsert-on-conflict absorbs a concurrent reconcile racing the same
        // clients: the loser's inserts count as already-existing, not errors.
        n, err := s.Store.UpsertStops(ctx, toInsert)
        if err != nil {
            return res, created, err
        }
        res.StopsCreated = n
        metrics.StopsReconciled.WithLabelValues(day).Add(float64(n))
    }
    if res.StopsCreated > 0 {
        s.notify(ctx, day, "stops.reconciled", map[string]any{"day": day, "stopsCreated": res.StopsCreated})
    }
    return res, created, nil
}

func skipClass(reason string) string {
    switch {
    case reason == "paused":
        return "paused"
    case reason == "delivery off":
        return "delivery_off"
    default:
        return "no_active_order"
    }
}

func ptr(s string) *string { return &s }

// RoutesForDay assembles the dispatcher view: reconciles missing stops, then
// builds each driver's ordered, hydrated stop list.
func (s *Service) RoutesForDay(ctx context.Context, day, deliveryDate string) (model.RoutesView, error) {
    rec, created, err := s.reconcile(ctx, day, deliveryDate)
    if err != nil {
        return model.RoutesView{}, err
    }
    d, err := s.loadDay(ctx, day, deliveryDate)
    if err != nil {
        return model.RoutesView{}, err
    }

    hydrated := map[string]model.Stop{}
    byDriver := map[string][]model.Stop{}
    for _, st := range d.stops {
        h := ResolveOrderDate(HydrateStop(st, d.clientByID), d.ix)
        hydrated[h.ID] = h
        if h.AssignedDriverID != nil {
            byDriver[*h.AssignedDriverID] = append(byDriver[*h.AssignedDriverID], h)
        }
    }

    view := model.RoutesView{Routes: []model.DriverRoute{}, Unrouted: []model.Stop{}, UsersWithoutStops: []model.SkippedClient{}}
    claimed := map[string]bool{}
    for _, dr := range s.viewDrivers(d) {
        ids := d.view.StopIDsFor(dr, byDriver[dr.ID])
        stops := make([]model.Stop, 0, len(ids))
        completed := 0
        for _, id := range ids {
            st := hydrated[id]
            stops = append(stops, st)
            claimed[id] = true
            if st.Completed {
                completed++
            }
        }
        view.Routes = append(view.Routes, model.DriverRoute{
            DriverID:       dr.ID,
            DriverName:     dr.Name,
            Color:          dr.Color,
            Stops:          stops,
            TotalStops:     len(ids),
            CompletedStops: completed,
        })
    }

    unroutedIDs := []string{}
    for id := range hydrated {
        if !claimed[id] {
            unroutedIDs = append(unroutedIDs, id)
        }
    }
    sort.Strings(unroutedIDs)
    for _, id := range unroutedIDs {
        view.Unrouted = append(view.Unrouted, hydrated[id])
    }

    view.UsersWithoutStops = append(view.UsersWithoutStops, rec.Skipped...)
    view.UsersWithoutStops = append(view.UsersWithoutStops, created...)
    return view, nil
}

// viewDrivers merges day-scoped drivers with legacy routes table rows, which
// carry no day and join every view. Seq ordering keeps Driver 0 first.
func (s *Service) viewDrivers(d *dayData) []model.Driver {
    out := append([]model.Driver(nil), d.drivers...)
    seen := map[string]bool{}
    for _, dr := range d.drivers {
        seen[dr.ID] = true
    }
    for _, r := range d.legacy {
        if seen[r.ID] {
            continue
        }
        out = append(out, model.Driver{ID: r.ID, Name: r.Name, Seq: r.Seq, Day: "all", Color: r.Color, StopIDs: r.StopIDs})
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Seq != out[j].Seq {
            return out[i].Seq < out[j].Seq
        }
        return out[i].ID < out[j].ID
    })
    return out
}

// MobileSummaries is the lightweight active-only view for drivers' phones.
// Degrades to an empty list on store failure so the app renders rather than
// crashes.
func (s *Service) MobileSummaries(ctx context.Context, day, deliveryDate string) BestEffort[[]model.MobileRouteSummary] {
    view, err := s.RoutesForDay(ctx, day, deliveryDate)
    if err != nil {
        return degraded([]model.MobileRouteSummary{}, err)
    }
    out := []model.MobileRouteSummary{}
    for _, r := range view.Routes {
        if r.TotalStops == 0 {
            continue
        }
        ids := make([]string, 0, len(r.Stops))
        for _, st := range r.Stops {
            ids = append(ids, st.ID)
        }
        out = append(out, model.MobileRouteSummary{
            ID:             r.DriverID,
            Name:           r.DriverName,
            Color:          r.Color,
            StopIDs:        ids,
            TotalStops:     r.TotalStops,
            CompletedStops: r.CompletedStops,
        })
    }
    return ok(out)
}

// FlatStops returns candidate stops for a day, ordered by route position when
// a driver is given. Best-effort: degrades to empty on store failure.
func (s *Service) FlatStops(ctx context.Context, driverID, day, deliveryDate string) BestEffort[[]model.Stop] {
    d, err := s.loadDay(ctx, day, deliveryDate)
    if err != nil {
        return degraded([]model.Stop{}, err)
    }
    hydrate := func(st model.Stop) model.Stop {
        return ResolveOrderDate(HydrateStop(st, d.clientByID), d.ix)
    }
    if driverID == "" {
        out := make([]model.Stop, 0, len(d.stops))
        for _, st := range d.stops {
            out = append(out, hydrate(st))
        }
        return ok(out)
    }
    dr, err := s.Store.GetDriver(ctx, driverID)
    if err != nil {
        return degraded([]model.Stop{}, err)
    }
    assigned := []model.Stop{}
    byID := map[string]model.Stop{}
    for _, st := range d.stops {
        if st.AssignedDriverID != nil && *st.AssignedDriverID == driverID {
            h := hydrate(st)
            assigned = append(assigned, h)
            byID[h.ID] = h
        }
    }
    out := []model.Stop{}
    for _, id := range d.view.StopIDsFor(dr, assigned) {
        out = append(out, byID[id])
    }
    return ok(out)
}

// ListRuns returns the latest snapshots for a day, newest first.
func (s *Service) ListRuns(ctx context.Context, day string) ([]model.RouteRun, error) {
    return s.Store.ListRouteRuns(ctx, day, 10)
}

// snapshotRun records the full driver->stop assignment for a day. Runs are
// append-only; nothing in the core reads them back except the list endpoint.
func (s *Service) snapshotRun(ctx context.Context, day string) (string, error) {
    d, err := s.loadDay(ctx, day, "")
    if err != nil {
        return "", err
    }
    byDriver := map[string][]model.Stop{}
    for _, st := range d.stops {
        if st.AssignedDriverID != nil {
            byDriver[*st.AssignedDriverID] = append(byDriver[*st.AssignedDriverID], st)
        }
    }
    snap := []model.RouteSnapshotEntry{}
    for _, dr := range s.viewDrivers(d) {
        snap = append(snap, model.RouteSnapshotEntry{
            DriverID:   dr.ID,
            DriverName: dr.Name,
            Color:      dr.Color,
            StopIDs:    d.view.StopIDsFor(dr, byDriver[dr.ID]),
        })
    }
    run, err := s.Store.InsertRouteRun(ctx, model.RouteRun{Day: day, Snapshot: snap})
    if err != nil {
        return "", err
    }
    return run.ID, nil
}
