package api

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "testing"

    "mealroutes/internal/config"
    "mealroutes/internal/model"
    "mealroutes/internal/routing"
    "mealroutes/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory) {
    t.Helper()
    mem := store.NewMemory()
    cfg := config.Default()
    s := &Server{
        Store:     mem,
        Cfg:       cfg,
        Svc:       routing.NewService(mem, cfg),
        Pub:       nil,
        Broker:    NewBroker(),
        Locations: NewLocationCache(),
    }
    return s, mem
}

func fptr(f float64) *float64 { return &f }

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
    t.Helper()
    b, _ := json.Marshal(body)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    h(rr, req)
    return rr
}

func TestHealthReady(t *testing.T) {
    s, _ := newTestServer(t)
    rr := httptest.NewRecorder()
    s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
    if rr.Code != 200 {
        t.Fatalf("health: got %d", rr.Code)
    }
    rr = httptest.NewRecorder()
    s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
    if rr.Code != 200 {
        t.Fatalf("ready: got %d", rr.Code)
    }
}

func TestReconcileHandler(t *testing.T) {
    s, mem := newTestServer(t)
    mem.SeedClient(model.Client{ID: "a", FirstName: "Ada"})
    mem.SeedOrder(model.Order{ID: "o-a", ClientID: "a", Status: "pending", DeliveryDay: "monday"})

    rr := postJSON(t, s.ReconcileHandler, "/v1/stops/reconcile", map[string]any{"day": "monday"})
    if rr.Code != 200 {
        t.Fatalf("reconcile: got %d body %s", rr.Code, rr.Body.String())
    }
    var resp struct {
        StopsCreated int `json:"stopsCreated"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if resp.StopsCreated != 1 {
        t.Fatalf("stopsCreated = %d", resp.StopsCreated)
    }
}

func TestReconcileHandlerRejectsBadDay(t *testing.T) {
    s, _ := newTestServer(t)
    rr := postJSON(t, s.ReconcileHandler, "/v1/stops/reconcile", map[string]any{"day": "someday"})
    if rr.Code != http.StatusBadRequest {
        t.Fatalf("got %d want 400", rr.Code)
    }
    var p Problem
    if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != 400 {
        t.Fatalf("problem body: %s", rr.Body.String())
    }
}

func TestRoutesHandler(t *testing.T) {
    s, mem := newTestServer(t)
    mem.SeedClient(model.Client{ID: "a", FirstName: "Ada", Lat: fptr(40.7), Lng: fptr(-74.0)})
    mem.SeedOrder(model.Order{ID: "o-a", ClientID: "a", Status: "pending", DeliveryDay: "monday"})

    rr := httptest.NewRecorder()
    s.RoutesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/routes?day=monday", nil))
    if rr.Code != 200 {
        t.Fatalf("routes: got %d body %s", rr.Code, rr.Body.String())
    }
    var view model.RoutesView
    if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if len(view.Unrouted) != 1 {
        t.Fatalf("unrouted = %d want 1", len(view.Unrouted))
    }
}

func TestStopsHandlerAllParamsOptional(t *testing.T) {
    s, mem := newTestServer(t)
    mem.SeedClient(model.Client{ID: "a", FirstName: "Ada"})
    mem.SeedOrder(model.Order{ID: "o-a", ClientID: "a", Status: "pending", DeliveryDay: "monday"})
    if _, err := s.Svc.Reconcile(context.Background(), "monday", ""); err != nil {
        t.Fatalf("reconcile: %v", err)
    }

    rr := httptest.NewRecorder()
    s.StopsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/stops", nil))
    if rr.Code != 200 {
        t.Fatalf("no params: got %d body %s", rr.Code, rr.Body.String())
    }
    var stops []model.Stop
    if err := json.Unmarshal(rr.Body.Bytes(), &stops); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if len(stops) != 1 {
        t.Fatalf("stops = %d want 1", len(stops))
    }

    rr = httptest.NewRecorder()
    s.StopsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/stops?day=someday", nil))
    if rr.Code != http.StatusBadRequest {
        t.Fatalf("bad day still rejected: got %d want 400", rr.Code)
    }
}

func TestDriverZeroRemoveRejected(t *testing.T) {
    s, _ := newTestServer(t)
    rr := postJSON(t, s.DriversHandler, "/v1/drivers", map[string]any{"day": "monday"})
    if rr.Code != 200 {
        t.Fatalf("add driver: %d", rr.Code)
    }
    var resp struct {
        Driver struct {
            ID   string `json:"id"`
            Name string `json:"name"`
        } `json:"driver"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
        t.Fatalf("decode: %v", err)
    }
    if resp.Driver.Name != "Driver 0" {
        t.Fatalf("first driver name = %q", resp.Driver.Name)
    }

    rr = httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodDelete, "/v1/drivers/"+resp.Driver.ID+"?day=monday", nil)
    s.DriverByIDHandler(rr, req)
    if rr.Code != http.StatusBadRequest {
        t.Fatalf("removing Driver 0: got %d want 400", rr.Code)
    }
}

func TestRemoveUnknownDriver404(t *testing.T) {
    s, _ := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodDelete, "/v1/drivers/nope?day=monday", nil)
    s.DriverByIDHandler(rr, req)
    if rr.Code != http.StatusNotFound {
        t.Fatalf("got %d want 404", rr.Code)
    }
}

func TestReverseUnknownRoute404(t *testing.T) {
    s, _ := newTestServer(t)
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/routes/nope/reverse", nil)
    s.RouteByIDHandler(rr, req)
    if rr.Code != http.StatusNotFound {
        t.Fatalf("got %d want 404", rr.Code)
    }
}

func TestGenerateHandlerValidation(t *testing.T) {
    s, _ := newTestServer(t)
    rr := postJSON(t, s.GenerateHandler, "/v1/routes/generate", map[string]any{"day": "monday", "driverCount": 0})
    if rr.Code != http.StatusBadRequest {
        t.Fatalf("driverCount 0: got %d want 400", rr.Code)
    }
    rr = postJSON(t, s.GenerateHandler, "/v1/routes/generate", map[string]any{"day": "monday", "driverCount": 2})
    if rr.Code != 200 {
        t.Fatalf("generate: got %d body %s", rr.Code, rr.Body.String())
    }
}

func TestGenerateForbiddenForDriverRole(t *testing.T) {
    s, _ := newTestServer(t)
    b, _ := json.Marshal(map[string]any{"day": "monday", "driverCount": 2})
    rr := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/v1/routes/generate", bytes.NewReader(b))
    req.Header.Set("X-Role", "driver")
    s.GenerateHandler(rr, req)
    if rr.Code != http.StatusForbidden {
        t.Fatalf("got %d want 403", rr.Code)
    }
}

func TestSubscriptionsCRUD(t *testing.T) {
    s, _ := newTestServer(t)
    rr := postJSON(t, s.SubscriptionsHandler, "/v1/subscriptions", map[string]any{
        "url": "http://example.com/hook", "events": []string{"routes.generated"}, "secret": "s",
    })
    if rr.Code != http.StatusCreated {
        t.Fatalf("create: got %d", rr.Code)
    }
    var sub model.Subscription
    if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil || sub.ID == "" {
        t.Fatalf("create body: %s", rr.Body.String())
    }

    rr = httptest.NewRecorder()
    s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
    if rr.Code != 200 {
        t.Fatalf("list: got %d", rr.Code)
    }

    rr = httptest.NewRecorder()
    s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
    if rr.Code != http.StatusNoContent {
        t.Fatalf("delete: got %d", rr.Code)
    }
    rr = httptest.NewRecorder()
    s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
    if rr.Code != http.StatusNotFound {
        t.Fatalf("delete again: got %d", rr.Code)
    }
}

func TestDriverLocations(t *testing.T) {
    s, _ := newTestServer(t)
    rr := postJSON(t, s.DriverLocationsHandler, "/v1/driver-locations", map[string]any{
        "day": "monday", "driverId": "d1", "lat": 40.7, "lng": -74.0,
    })
    if rr.Code != 200 {
        t.Fatalf("post: got %d", rr.Code)
    }
    rr = httptest.NewRecorder()
    s.DriverLocationsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/driver-locations?day=monday", nil))
    if rr.Code != 200 {
        t.Fatalf("get: got %d", rr.Code)
    }
    var locs []LatestLocation
    if err := json.Unmarshal(rr.Body.Bytes(), &locs); err != nil || len(locs) != 1 {
        t.Fatalf("locations body: %s", rr.Body.String())
    }
    if locs[0].DriverID != "d1" || locs[0].Lat != 40.7 {
        t.Fatalf("location = %+v", locs[0])
    }
}

// failingStore makes every client read fail so degraded read paths can be
// exercised.
type failingStore struct {
    *store.Memory
}

func (f *failingStore) ListClients(ctx context.Context) ([]model.Client, error) {
    return nil, errors.New("db down")
}

func TestMobileRoutesDegradeToEmpty200(t *testing.T) {
    s, mem := newTestServer(t)
    s.Svc = routing.NewService(&failingStore{Memory: mem}, s.Cfg)

    rr := httptest.NewRecorder()
    s.RoutesMobileHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/routes/mobile?day=monday", nil))
    if rr.Code != 200 {
        t.Fatalf("got %d want degraded 200", rr.Code)
    }
    var items []model.MobileRouteSummary
    if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
        t.Fatalf("decode: %v body %s", err, rr.Body.String())
    }
    if len(items) != 0 {
        t.Fatalf("expected empty payload, got %v", items)
    }
}
