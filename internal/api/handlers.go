package api

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "mealroutes/internal/model"
    "mealroutes/internal/routing"
    "mealroutes/internal/store"
)

// dayParams resolves the day/delivery_date query pair. A delivery_date
// without a day resolves to that date's weekday in the canonical zone.
func (s *Server) dayParams(r *http.Request) (day, deliveryDate string, err error) {
    deliveryDate = r.URL.Query().Get("delivery_date")
    raw := r.URL.Query().Get("day")
    if raw == "" && deliveryDate != "" {
        wd, ok := routing.WeekdayOfDate(deliveryDate, s.Cfg.Location())
        if !ok {
            return "", "", errors.New("invalid delivery_date: " + deliveryDate)
        }
        return wd, deliveryDate, nil
    }
    day, verr := validateDay(raw)
    if verr != nil {
        return "", "", verr
    }
    return day, deliveryDate, nil
}

// ReconcileHandler handles POST /v1/stops/reconcile
func (s *Server) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req model.ReconcileRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    day, err := validateDay(req.Day)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    res, err := s.Svc.Reconcile(r.Context(), day, "")
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Reconcile failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "stopsCreated": res.StopsCreated,
        "skipped":      res.Skipped,
        "message":      "reconciled " + day,
    })
}

// RoutesHandler handles GET /v1/routes
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    day, deliveryDate, err := s.dayParams(r)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    view, err := s.Svc.RoutesForDay(r.Context(), day, deliveryDate)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Load routes failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, view)
}

// RoutesMobileHandler handles GET /v1/routes/mobile. Always 200: a store
// failure degrades to an empty list so the driver app keeps rendering.
func (s *Server) RoutesMobileHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    day, deliveryDate, err := s.dayParams(r)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    res := s.Svc.MobileSummaries(r.Context(), day, deliveryDate)
    writeJSON(w, http.StatusOK, res.Value)
}

// StopsHandler handles GET /v1/stops. Every parameter is optional: no day
// and no delivery_date means all days. Degraded-empty 200 like the mobile view.
func (s *Server) StopsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    day, deliveryDate := "all", ""
    if r.URL.Query().Get("day") != "" || r.URL.Query().Get("delivery_date") != "" {
        var err error
        day, deliveryDate, err = s.dayParams(r)
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
            return
        }
    }
    res := s.Svc.FlatStops(r.Context(), r.URL.Query().Get("driverId"), day, deliveryDate)
    writeJSON(w, http.StatusOK, res.Value)
}

// ReorganizeHandler handles POST /v1/routes/reorganize
func (s *Server) ReorganizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanDispatch() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
        return
    }
    var req model.ReorganizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateReorganizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid reorganize request", err.Error(), r.URL.Path)
        return
    }
    res, err := s.Svc.Reorganize(r.Context(), req)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Driver not found", err.Error(), r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Reorganize failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// GenerateHandler handles POST /v1/routes/generate
func (s *Server) GenerateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanDispatch() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "dispatcher or admin required", r.URL.Path)
        return
    }
    var req model.GenerateRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateGenerateRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid generate request", err.Error(), r.URL.Path)
        return
    }
    res, err := s.Svc.GenerateRoutes(r.Context(), req.Day, req.DriverCount)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Generate routes failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// RouteByIDHandler handles POST /v1/routes/{id}/reverse
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
    parts := strings.Split(rest, "/")
    if len(parts) == 2 && parts[1] == "reverse" && r.Method == http.MethodPost {
        if err := s.Svc.ReverseRoute(r.Context(), parts[0]); err != nil {
            if errors.Is(err, store.ErrNotFound) {
                writeProblem(w, http.StatusNotFound, "Route not found", "no driver with id "+parts[0], r.URL.Path)
                return
            }
            writeProblem(w, http.StatusInternalServerError, "Reverse failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "route reversed"})
        return
    }
    w.WriteHeader(http.StatusNotFound)
}

// DriversHandler handles POST /v1/drivers
func (s *Server) DriversHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        Day string `json:"day"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    day, err := validateDay(req.Day)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    d, runID, err := s.Svc.AddDriver(r.Context(), day)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Add driver failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "driver": map[string]any{"id": d.ID, "name": d.Name, "color": d.Color},
        "runId":  runID,
    })
}

// DriverByIDHandler handles DELETE /v1/drivers/{id}
func (s *Server) DriverByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/drivers/")
    if id == "" || strings.Contains(id, "/") {
        w.WriteHeader(http.StatusNotFound)
        return
    }
    day, err := validateDay(r.URL.Query().Get("day"))
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    n, err := s.Svc.RemoveDriver(r.Context(), id, day)
    if err != nil {
        switch {
        case errors.Is(err, routing.ErrProtectedDriver):
            writeProblem(w, http.StatusBadRequest, "Protected driver", "Driver 0 cannot be removed", r.URL.Path)
        case errors.Is(err, store.ErrNotFound):
            writeProblem(w, http.StatusNotFound, "Driver not found", "no driver with id "+id, r.URL.Path)
        default:
            writeProblem(w, http.StatusInternalServerError, "Remove driver failed", err.Error(), r.URL.Path)
        }
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"success": true, "stopsUnassigned": n})
}

// RouteRunsHandler handles GET /v1/route-runs
func (s *Server) RouteRunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    day, err := validateDay(r.URL.Query().Get("day"))
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    runs, err := s.Svc.ListRuns(r.Context(), day)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List runs failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// DriverLocationsHandler handles POST/GET /v1/driver-locations
func (s *Server) DriverLocationsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            Day      string  `json:"day"`
            DriverID string  `json:"driverId"`
            Lat      float64 `json:"lat"`
            Lng      float64 `json:"lng"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        day, err := validateDay(req.Day)
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
            return
        }
        if req.DriverID == "" {
            writeProblem(w, http.StatusBadRequest, "Missing driverId", "driverId is required", r.URL.Path)
            return
        }
        ts := time.Now().UTC().Format(time.RFC3339)
        s.Locations.Upsert(day, req.DriverID, req.Lat, req.Lng, ts)
        s.Broker.Publish(day, SSEEvent{Type: "driver.location", Data: map[string]any{
            "driverId": req.DriverID, "lat": req.Lat, "lng": req.Lng, "ts": ts,
        }})
        writeJSON(w, http.StatusOK, map[string]any{"ok": true})
    case http.MethodGet:
        day, err := validateDay(r.URL.Query().Get("day"))
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, s.Locations.ListByDay(day))
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        subs, err := s.Store.ListSubscriptions(r.Context())
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": subs})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Subscription not found", "no subscription with id "+id, r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
        return
    }
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            limit = n
        }
    }
    items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if err := s.Store.Ping(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Not ready", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
