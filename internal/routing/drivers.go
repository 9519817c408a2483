package routing

import (
    "context"
    "errors"
    "fmt"
    "regexp"
    "sort"

    "github.com/google/uuid"

    "mealroutes/internal/metrics"
    "mealroutes/internal/model"
    "mealroutes/internal/store"
)

// ErrProtectedDriver is returned when a caller tries to remove Driver 0.
var ErrProtectedDriver = errors.New("driver 0 cannot be removed")

var driverZeroRe = regexp.MustCompile(`(?i)driver\s+0`)

// Reorganize reorders stops within each driver's route using the
// nearest-neighbor heuristic, optionally followed by a 2-opt pass. Scoped to
// one driver when req.DriverID is set. Writes go to driver_route_order (dense
// positions) and to the legacy stop_ids array so older readers stay in sync.
func (s *Service) Reorganize(ctx context.Context, req model.ReorganizeRequest) (model.ReorganizeResult, error) {
    d, err := s.loadDay(ctx, req.Day, req.DeliveryDate)
    if err != nil {
        return model.ReorganizeResult{}, err
    }

    targets := d.drivers
    if req.DriverID != "" {
        targets = nil
        for _, dr := range d.drivers {
            if dr.ID == req.DriverID {
                targets = []model.Driver{dr}
                break
            }
        }
        if targets == nil {
            return model.ReorganizeResult{}, fmt.Errorf("driver %s: %w", req.DriverID, store.ErrNotFound)
        }
    }

    byDriver := map[string][]model.Stop{}
    for _, st := range d.stops {
        if st.AssignedDriverID != nil {
            byDriver[*st.AssignedDriverID] = append(byDriver[*st.AssignedDriverID], st)
        }
    }

    res := model.ReorganizeResult{}
    for _, dr := range targets {
        assigned := byDriver[dr.ID]
        if len(assigned) == 0 {
            continue
        }
        ordered, clientIDs := s.orderStops(d, assigned, req.Improve == "2opt")
        if err := s.Store.SetRouteOrder(ctx, dr.ID, clientIDs); err != nil {
            return res, err
        }
        if err := s.Store.SetDriverStopIDs(ctx, dr.ID, ordered); err != nil {
            return res, err
        }
        res.DriversOptimized++
        res.StopsReordered += len(ordered)
        metrics.OptimizerRuns.Inc()
        metrics.OptimizerStops.Observe(float64(len(ordered)))
    }
    if res.DriversOptimized > 0 {
        s.notify(ctx, req.Day, "routes.reorganized", map[string]any{"day": req.Day, "driversOptimized": res.DriversOptimized})
    }
    return res, nil
}

// orderStops runs the heuristic over one driver's stops and returns the stop
// ids in visiting order plus the client ids for the relational rewrite.
// Coordinates come from the live client record first, falling back to the
// stop's own snapshot when the client was never geocoded.
func (s *Service) orderStops(d *dayData, assigned []model.Stop, improve bool) (stopIDs, clientIDs []string) {
    sort.Slice(assigned, func(i, j int) bool { return assigned[i].ID < assigned[j].ID })
    points := make([]ClientPoint, 0, len(assigned))
    keyToStop := map[string]model.Stop{}
    for _, st := range assigned {
        key := "stop:" + st.ID
        if st.ClientID != nil && *st.ClientID != "" {
            key = *st.ClientID
        }
        keyToStop[key] = st
        p := ClientPoint{ClientID: key, Lat: st.Lat, Lng: st.Lng}
        if st.ClientID != nil {
            if c, ok := d.clientByID[*st.ClientID]; ok && c.Lat != nil && c.Lng != nil {
                p.Lat, p.Lng = c.Lat, c.Lng
            }
        }
        points = append(points, p)
    }
    order := NearestNeighborOrder(points)
    if improve {
        order = ImproveOrder(points, order)
    }
    for _, key := range order {
        st := keyToStop[key]
        stopIDs = append(stopIDs, st.ID)
        if st.ClientID != nil && *st.ClientID != "" {
            clientIDs = append(clientIDs, *st.ClientID)
        }
    }
    return stopIDs, clientIDs
}

// ReverseRoute flips a driver's current visiting order end to end.
func (s *Service) ReverseRoute(ctx context.Context, driverID string) error {
    dr, err := s.Store.GetDriver(ctx, driverID)
    if err != nil {
        return err
    }
    d, err := s.loadDay(ctx, dr.Day, "")
    if err != nil {
        return err
    }
    assigned := []model.Stop{}
    byID := map[string]model.Stop{}
    for _, st := range d.stops {
        if st.AssignedDriverID != nil && *st.AssignedDriverID == driverID {
            assigned = append(assigned, st)
            byID[st.ID] = st
        }
    }
    ids := d.view.StopIDsFor(dr, assigned)
    for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
        ids[i], ids[j] = ids[j], ids[i]
    }
    clientIDs := []string{}
    for _, id := range ids {
        if st, okk := byID[id]; okk && st.ClientID != nil && *st.ClientID != "" {
            clientIDs = append(clientIDs, *st.ClientID)
        }
    }
    if err := s.Store.SetRouteOrder(ctx, driverID, clientIDs); err != nil {
        return err
    }
    if err := s.Store.SetDriverStopIDs(ctx, driverID, ids); err != nil {
        return err
    }
    s.notify(ctx, dr.Day, "routes.reorganized", map[string]any{"day": dr.Day, "driverId": driverID, "reversed": true})
    return nil
}

// AddDriver creates the next driver for a day and snapshots the run.
func (s *Service) AddDriver(ctx context.Context, day string) (model.Driver, string, error) {
    existing, err := s.Store.ListDrivers(ctx, day)
    if err != nil {
        return model.Driver{}, "", err
    }
    seq := 0
    for _, dr := range existing {
        if dr.Seq >= seq {
            seq = dr.Seq + 1
        }
    }
    d := model.Driver{
        ID:      uuid.New().String(),
        Name:    fmt.Sprintf("Driver %d", seq),
        Seq:     seq,
        Day:     day,
        Color:   s.Cfg.ColorFor(seq),
        StopIDs: []string{},
    }
    if err := s.Store.CreateDriver(ctx, d); err != nil {
        return model.Driver{}, "", err
    }
    runID, err := s.snapshotRun(ctx, day)
    if err != nil {
        return d, "", err
    }
    s.notify(ctx, day, "driver.added", map[string]any{"day": day, "driverId": d.ID, "name": d.Name})
    return d, runID, nil
}

// RemoveDriver deletes a driver and unassigns its stops and clients. Driver 0
// is the anchor route and can never be removed. Stops are never deleted, only
// detached.
func (s *Service) RemoveDriver(ctx context.Context, driverID, day string) (stopsUnassigned int, err error) {
    dr, err := s.Store.GetDriver(ctx, driverID)
    if err != nil {
        return 0, err
    }
    if dr.Seq == 0 || driverZeroRe.MatchString(dr.Name) {
        return 0, ErrProtectedDriver
    }
    n, err := s.Store.ClearDriverStops(ctx, driverID)
    if err != nil {
        return 0, err
    }
    clients, err := s.Store.ListClients(ctx)
    if err != nil {
        return n, err
    }
    for _, c := range clients {
        if c.AssignedDriverID != nil && *c.AssignedDriverID == driverID {
            if err := s.Store.SetClientDriver(ctx, c.ID, nil); err != nil {
                return n, err
            }
        }
    }
    if err := s.Store.DeleteDriver(ctx, driverID); err != nil {
        return n, err
    }
    if _, err := s.snapshotRun(ctx, day); err != nil {
        return n, err
    }
    s.notify(ctx, day, "driver.removed", map[string]any{"day": day, "driverId": driverID, "stopsUnassigned": n})
    return n, nil
}

// GenerateRoutes reconciles the day, ensures driverCount drivers exist, and
// deals every stop out across them: one global nearest-neighbor pass, then
// contiguous even-sized chunks. Drivers beyond the new count are retained
// with their assignments cleared, never deleted.
func (s *Service) GenerateRoutes(ctx context.Context, day string, driverCount int) (model.GenerateResult, error) {
    if _, _, err := s.reconcile(ctx, day, ""); err != nil {
        return model.GenerateResult{}, err
    }
    d, err := s.loadDay(ctx, day, "")
    if err != nil {
        return model.GenerateResult{}, err
    }

    res := model.GenerateResult{}
    drivers := append([]model.Driver(nil), d.drivers...)
    sort.Slice(drivers, func(i, j int) bool { return drivers[i].Seq < drivers[j].Seq })
    for seq := len(drivers); seq < driverCount; seq++ {
        nd := model.Driver{
            ID:      uuid.New().String(),
            Name:    fmt.Sprintf("Driver %d", seq),
            Seq:     seq,
            Day:     day,
            Color:   s.Cfg.ColorFor(seq),
            StopIDs: []string{},
        }
        if err := s.Store.CreateDriver(ctx, nd); err != nil {
            return res, err
        }
        drivers = append(drivers, nd)
        res.DriversCreated++
    }
    // Surplus drivers keep their rows but lose their assignments.
    for _, dr := range drivers[min(driverCount, len(drivers)):] {
        if err := s.Store.SetDriverStopIDs(ctx, dr.ID, []string{}); err != nil {
            return res, err
        }
        if err := s.Store.SetRouteOrder(ctx, dr.ID, nil); err != nil {
            return res, err
        }
    }
    active := drivers[:min(driverCount, len(drivers))]

    candidates := []model.Stop{}
    for _, st := range d.stops {
        if st.ClientID != nil && *st.ClientID != "" {
            candidates = append(candidates, st)
        }
    }
    orderedIDs, _ := s.orderStops(d, candidates, false)
    byID := map[string]model.Stop{}
    for _, st := range candidates {
        byID[st.ID] = st
    }

    // Even contiguous split: the first len%count chunks get one extra stop.
    n := len(orderedIDs)
    base := 0
    extra := 0
    if len(active) > 0 {
        base = n / len(active)
        extra = n % len(active)
    }
    pos := 0
    for i, dr := range active {
        size := base
        if i < extra {
            size++
        }
        chunk := orderedIDs[pos : pos+size]
        pos += size
        clientIDs := []string{}
        for _, id := range chunk {
            st := byID[id]
            if err := s.Store.SetStopDriver(ctx, id, ptr(dr.ID)); err != nil {
                return res, err
            }
            if st.ClientID != nil {
                clientIDs = append(clientIDs, *st.ClientID)
                if err := s.Store.SetClientDriver(ctx, *st.ClientID, ptr(dr.ID)); err != nil {
                    return res, err
                }
            }
        }
        if err := s.Store.SetRouteOrder(ctx, dr.ID, clientIDs); err != nil {
            return res, err
        }
        if err := s.Store.SetDriverStopIDs(ctx, dr.ID, chunk); err != nil {
            return res, err
        }
        res.StopsAssigned += len(chunk)
    }

    runID, err := s.snapshotRun(ctx, day)
    if err != nil {
        return res, err
    }
    res.RunID = runID
    s.notify(ctx, day, "routes.generated", map[string]any{"day": day, "driverCount": driverCount, "stopsAssigned": res.StopsAssigned})
    return res, nil
}
