package api

import (
    "context"
    "log"
    "os"
    "strings"

    "mealroutes/internal/config"
    "mealroutes/internal/routing"
    "mealroutes/internal/store"
    "mealroutes/internal/webhooks"
)

type Server struct {
    Store     store.Store
    Cfg       config.Config
    Svc       *routing.Service
    Pub       *webhooks.Publisher
    Broker    EventBroker
    Locations *LocationCache
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    cfg, err := config.Load(os.Getenv("ROUTES_CONFIG"))
    if err != nil {
        return nil, err
    }
    dsn := os.Getenv("DATABASE_URL")
    var st store.Store
    if strings.TrimSpace(dsn) == "" {
        st = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        if os.Getenv("DB_MIGRATE") != "false" {
            if err := sp.MigrateDir("db/migrations"); err != nil {
                log.Printf("migrate: %v", err)
            }
        }
        st = sp
    }
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil {
            broker = rb
        } else {
            broker = NewBroker()
        }
    } else {
        broker = NewBroker()
    }
    s := &Server{
        Store:     st,
        Cfg:       cfg,
        Svc:       routing.NewService(st, cfg),
        Pub:       webhooks.NewPublisher(st),
        Broker:    broker,
        Locations: NewLocationCache(),
    }
    // Route changes fan out to stream subscribers and the webhook queue.
    s.Svc.Notify = func(ctx context.Context, day, event string, payload map[string]any) {
        s.Broker.Publish(day, SSEEvent{Type: event, Data: payload})
        s.Pub.Emit(ctx, event, day, payload)
    }
    return s, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts)
}
