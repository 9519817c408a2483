package api

import (
    "sync"
)

type SSEEvent struct {
    Type string
    Data map[string]any
}

// Broker fans route events out to stream subscribers, keyed by day.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan SSEEvent]struct{} // day -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(day string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[day] == nil {
        b.subs[day] = map[chan SSEEvent]struct{}{}
    }
    b.subs[day][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(day string, ch chan SSEEvent) {
    b.mu.Lock()
    if m := b.subs[day]; m != nil {
        delete(m, ch)
        if len(m) == 0 {
            delete(b.subs, day)
        }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(day string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[day]
    for ch := range m {
        select {
        case ch <- evt:
        default:
        }
    }
    b.mu.Unlock()
}
