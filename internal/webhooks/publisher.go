// Package webhooks delivers route events to registered subscriber URLs with
// HMAC signing and retry.
package webhooks

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "mealroutes/internal/store"
)

type Publisher struct {
    Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
    return &Publisher{Store: s}
}

// Emit enqueues the event for every subscription registered for its type.
// Failures to enqueue are dropped; webhook delivery is best-effort by
// contract and must never fail the triggering request.
func (p *Publisher) Emit(ctx context.Context, eventType, day string, data any) {
    subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
    if err != nil || len(subs) == 0 {
        return
    }
    payload := map[string]any{
        "id":   fmt.Sprintf("evt_%d", time.Now().UnixNano()),
        "type": eventType,
        "day":  day,
        "ts":   time.Now().UTC().Format(time.RFC3339),
        "data": data,
    }
    body, _ := json.Marshal(payload)
    for _, s := range subs {
        _, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
    }
}
