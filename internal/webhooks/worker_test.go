package webhooks

import (
    "context"
    "net/http"
    "net/http/httptest"
    "sync"
    "testing"
    "time"

    "mealroutes/internal/model"
    "mealroutes/internal/store"
)

func subReq(url string, events ...string) model.SubscriptionRequest {
    return model.SubscriptionRequest{URL: url, Events: events, Secret: "s"}
}

type recordStore struct {
    *store.Memory
    mu    sync.Mutex
    marks []markRec
    fails []failRec
}
type markRec struct {
    ID            string
    Success       bool
    Code, Latency int
    LastErr       string
}
type failRec struct {
    ID            string
    Code, Latency int
    LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    r.mu.Lock()
    r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
    r.mu.Unlock()
    return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    r.mu.Lock()
    r.fails = append(r.fails, failRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
    r.mu.Unlock()
    return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
    var gotSig, gotType string
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotSig = r.Header.Get("X-Signature")
        gotType = r.Header.Get("X-Event-Type")
        w.WriteHeader(200)
    }))
    defer srv.Close()

    rs := &recordStore{Memory: store.NewMemory()}
    w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
    body := []byte(`{"id":"evt1"}`)
    id, err := rs.Memory.EnqueueWebhook(context.Background(), "sub1", "routes.generated", srv.URL, "secret", body)
    if err != nil || id == "" {
        t.Fatalf("enqueue failed: %v", err)
    }

    w.processOnce()

    if gotType != "routes.generated" {
        t.Fatalf("missing event type header: %q", gotType)
    }
    if !VerifyHMAC("secret", body, gotSig) {
        t.Fatalf("signature does not verify: %q", gotSig)
    }
    if len(rs.marks) == 0 || !rs.marks[0].Success {
        t.Fatalf("expected mark success, got: %+v", rs.marks)
    }
}

func TestWorkerProcessOnce_FailAfterMaxAttempts(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
    defer srv.Close()
    rs := &recordStore{Memory: store.NewMemory()}
    w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
    _, _ = rs.Memory.EnqueueWebhook(context.Background(), "sub1", "routes.generated", srv.URL, "", []byte(`{}`))
    w.processOnce()
    if len(rs.fails) == 0 {
        t.Fatal("expected fail recorded")
    }
    if len(rs.marks) != 0 {
        t.Fatalf("exhausted delivery should not be retried: %+v", rs.marks)
    }
}

func TestPublisherEmitFansOutPerSubscription(t *testing.T) {
    mem := store.NewMemory()
    ctx := context.Background()
    if _, err := mem.CreateSubscription(ctx, subReq("http://a.example", "routes.generated")); err != nil {
        t.Fatalf("sub: %v", err)
    }
    if _, err := mem.CreateSubscription(ctx, subReq("http://b.example", "routes.generated")); err != nil {
        t.Fatalf("sub: %v", err)
    }
    if _, err := mem.CreateSubscription(ctx, subReq("http://c.example", "driver.added")); err != nil {
        t.Fatalf("sub: %v", err)
    }

    p := NewPublisher(mem)
    p.Emit(ctx, "routes.generated", "monday", map[string]any{"stopsAssigned": 4})

    due, err := mem.FetchDueWebhookDeliveries(ctx, 10)
    if err != nil {
        t.Fatalf("fetch: %v", err)
    }
    if len(due) != 2 {
        t.Fatalf("deliveries = %d want 2", len(due))
    }
}

func TestNextBackoffGrowsAndCaps(t *testing.T) {
    if nextBackoff(0) != time.Second {
        t.Fatalf("first backoff = %v", nextBackoff(0))
    }
    if nextBackoff(3) != 8*time.Second {
        t.Fatalf("fourth backoff = %v", nextBackoff(3))
    }
    if nextBackoff(100) > time.Hour {
        t.Fatalf("backoff exceeds cap: %v", nextBackoff(100))
    }
}
