package api

import (
    "context"
    "encoding/json"
    "os"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
    Subscribe(day string) chan SSEEvent
    Unsubscribe(day string, ch chan SSEEvent)
    Publish(day string, evt SSEEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so multiple API
// instances see each other's route events.
type RedisBroker struct {
    rdb *redis.Client

    mu   sync.Mutex
    subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker() (*RedisBroker, error) {
    url := os.Getenv("REDIS_URL")
    opt, err := redis.ParseURL(url)
    if err != nil {
        return nil, err
    }
    return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(day string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(day))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    // Only the pump closes ch: a publish landing mid-unsubscribe must never
    // hit a closed channel.
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select {
                case ch <- evt:
                default:
                }
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(day string, ch chan SSEEvent) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ps != nil {
        // closing the PubSub ends ps.Channel(), which lets the pump close ch
        _ = ps.Close()
    }
}

func (b *RedisBroker) Publish(day string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(day), data).Err()
}

func (b *RedisBroker) chanName(day string) string { return "routes:" + day }
