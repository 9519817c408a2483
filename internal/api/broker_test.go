package api

import (
    "testing"
    "time"

    redis "github.com/redis/go-redis/v9"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    day := "monday"
    ch := b.Subscribe(day)

    evt := SSEEvent{Type: "routes.generated", Data: map[string]any{"stopsAssigned": 4}}
    b.Publish(day, evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type {
            t.Fatalf("got type %s, want %s", got.Type, evt.Type)
        }
        if got.Data["stopsAssigned"].(int) != 4 {
            t.Fatalf("bad payload: %+v", got.Data)
        }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(day, ch)
    select {
    case _, ok := <-ch:
        if ok {
            t.Fatal("channel should be closed after unsubscribe")
        }
    case <-time.After(50 * time.Millisecond):
        // acceptable if already drained and closed
    }
}

// The pump goroutine owns closing a subscriber channel. Unsubscribe must
// leave it open so an in-flight publish can never hit a closed channel.
func TestRedisBrokerUnsubscribeLeavesChannelToPump(t *testing.T) {
    b := &RedisBroker{subs: map[chan SSEEvent]*redis.PubSub{}}
    ch := make(chan SSEEvent, 1)
    b.Unsubscribe("monday", ch)
    ch <- SSEEvent{Type: "routes.generated"} // panics if Unsubscribe closed ch
}

func TestBrokerIsolatesDays(t *testing.T) {
    b := NewBroker()
    mon := b.Subscribe("monday")
    tue := b.Subscribe("tuesday")
    defer b.Unsubscribe("monday", mon)
    defer b.Unsubscribe("tuesday", tue)

    b.Publish("monday", SSEEvent{Type: "driver.added"})
    select {
    case <-mon:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("monday subscriber missed event")
    }
    select {
    case evt := <-tue:
        t.Fatalf("tuesday subscriber received monday event: %+v", evt)
    case <-time.After(50 * time.Millisecond):
    }
}
