package main

import (
    "log"
    "net/http"
    "os"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "mealroutes/internal/api"
    "mealroutes/internal/metrics"
)

func main() {
    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Reconciliation and route views
    mux.HandleFunc("/v1/stops/reconcile", srvDeps.ReconcileHandler)
    mux.HandleFunc("/v1/stops", srvDeps.StopsHandler)
    mux.HandleFunc("/v1/routes", srvDeps.RoutesHandler)
    mux.HandleFunc("/v1/routes/mobile", srvDeps.RoutesMobileHandler)

    // Route mutation
    mux.HandleFunc("/v1/routes/reorganize", srvDeps.ReorganizeHandler)
    mux.HandleFunc("/v1/routes/generate", srvDeps.GenerateHandler)
    mux.HandleFunc("/v1/routes/stream", srvDeps.RoutesStreamHandler)
    mux.HandleFunc("/v1/routes/", srvDeps.RouteByIDHandler) // /{id}/reverse

    // Drivers
    mux.HandleFunc("/v1/drivers", srvDeps.DriversHandler)
    mux.HandleFunc("/v1/drivers/", srvDeps.DriverByIDHandler)

    // Run snapshots and live locations
    mux.HandleFunc("/v1/route-runs", srvDeps.RouteRunsHandler)
    mux.HandleFunc("/v1/driver-locations", srvDeps.DriverLocationsHandler)

    // Webhook subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)

    // Ops
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    mux.HandleFunc("/debug/info", srvDeps.DebugJSON)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           api.Middleware(srvDeps.Cfg, mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API listening on %s", addr)
    worker := srvDeps.NewWebhookWorker()
    worker.Start()
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}
