package routing

import (
    "strings"
    "time"

    "mealroutes/internal/model"
)

// Weekdays in canonical lowercase form. "all" is accepted wherever a day is,
// meaning every day.
var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// NormalizeDay lowercases and validates a day name.
func NormalizeDay(s string) (string, bool) {
    d := strings.ToLower(strings.TrimSpace(s))
    if d == "all" {
        return d, true
    }
    for _, w := range Weekdays {
        if d == w {
            return d, true
        }
    }
    return "", false
}

// WeekdayOfDate derives the weekday of a YYYY-MM-DD date in the given zone.
// Every delivery-date to weekday conversion in the service goes through here;
// deriving it in server-local time shifts stops across midnight boundaries.
func WeekdayOfDate(date string, loc *time.Location) (string, bool) {
    t, err := time.ParseInLocation("2006-01-02", date, loc)
    if err != nil {
        return "", false
    }
    return strings.ToLower(t.Weekday().String()), true
}

// OrderIndex groups a day's order load by client for eligibility checks and
// delivery-date hydration.
type OrderIndex struct {
    orders   map[string][]model.Order
    upcoming map[string][]model.UpcomingOrder
    byID     map[string]model.Order
    upByID   map[string]model.UpcomingOrder
    loc      *time.Location
}

func NewOrderIndex(orders []model.Order, upcoming []model.UpcomingOrder, loc *time.Location) *OrderIndex {
    ix := &OrderIndex{
        orders:   map[string][]model.Order{},
        upcoming: map[string][]model.UpcomingOrder{},
        byID:     map[string]model.Order{},
        upByID:   map[string]model.UpcomingOrder{},
        loc:      loc,
    }
    for _, o := range orders {
        ix.orders[o.ClientID] = append(ix.orders[o.ClientID], o)
        ix.byID[o.ID] = o
    }
    for _, o := range upcoming {
        ix.upcoming[o.ClientID] = append(ix.upcoming[o.ClientID], o)
        ix.upByID[o.ID] = o
    }
    return ix
}

func orderActive(status string) bool {
    switch strings.ToLower(status) {
    case "pending", "scheduled", "confirmed":
        return true
    }
    return false
}

// upcomingActive: upcoming orders only count while still scheduled.
func upcomingActive(status string) bool {
    return strings.ToLower(status) == "scheduled"
}

func (ix *OrderIndex) orderMatchesDay(deliveryDay, scheduledDate, day string) bool {
    if day == "all" {
        return true
    }
    if deliveryDay != "" && strings.EqualFold(deliveryDay, day) {
        return true
    }
    if scheduledDate != "" {
        if wd, ok := WeekdayOfDate(scheduledDate, ix.loc); ok && wd == day {
            return true
        }
    }
    return false
}

// ActiveOrderFor returns the id of an active order that makes the client
// eligible for the day, preferring upcoming orders. Empty when none match.
func (ix *OrderIndex) ActiveOrderFor(clientID, day string) (string, bool) {
    for _, o := range ix.upcoming[clientID] {
        if upcomingActive(o.Status) && ix.orderMatchesDay(o.DeliveryDay, o.ScheduledDeliveryDate, day) {
            return o.ID, true
        }
    }
    for _, o := range ix.orders[clientID] {
        if orderActive(o.Status) && ix.orderMatchesDay(o.DeliveryDay, o.ScheduledDeliveryDate, day) {
            return o.ID, true
        }
    }
    return "", false
}

// LatestActiveOrder returns the most recent non-cancelled order for a client,
// used as the hydration fallback when a stop carries no order link.
func (ix *OrderIndex) LatestActiveOrder(clientID string) (model.Order, bool) {
    var best model.Order
    found := false
    for _, o := range ix.orders[clientID] {
        if strings.ToLower(o.Status) == "cancelled" {
            continue
        }
        if !found || o.CreatedAt.After(best.CreatedAt) {
            best = o
            found = true
        }
    }
    return best, found
}

// OrderByID resolves a direct order link, checking the upcoming table first.
func (ix *OrderIndex) OrderByID(id string) (model.Order, bool) {
    if o, ok := ix.upByID[id]; ok {
        return model.Order{ID: o.ID, ClientID: o.ClientID, Status: o.Status, DeliveryDay: o.DeliveryDay, ScheduledDeliveryDate: o.ScheduledDeliveryDate, CreatedAt: o.CreatedAt}, true
    }
    o, ok := ix.byID[id]
    return o, ok
}

// Eligibility decides whether a client should have a stop for the day.
// The reason is set only when the client is ineligible.
//
// Clients with an explicit weekly schedule are schedule-driven: the day's
// flag decides, with missing weekday keys defaulting to available (legacy
// rows only stored the disabled days). Clients with no schedule at all are
// order-driven: they need an active order attributable to the day. An active
// order for the day also qualifies a schedule-driven client whose flag is
// off, matching how ad hoc orders override the weekly template.
func Eligibility(c model.Client, day string, ix *OrderIndex) (orderID string, eligible bool, reason string) {
    if c.Paused {
        return "", false, "paused"
    }
    if !c.DeliveryEnabled() {
        return "", false, "delivery off"
    }
    if day == "all" {
        if c.Schedule != nil {
            return "", true, ""
        }
        if id, ok := ix.ActiveOrderFor(c.ID, "all"); ok {
            return id, true, ""
        }
        return "", false, "no active order"
    }
    if c.Schedule != nil {
        enabled, present := c.Schedule[day]
        if !present || enabled {
            if id, ok := ix.ActiveOrderFor(c.ID, day); ok {
                return id, true, ""
            }
            return "", true, ""
        }
    }
    if id, ok := ix.ActiveOrderFor(c.ID, day); ok {
        return id, true, ""
    }
    return "", false, "no active order for " + day
}
