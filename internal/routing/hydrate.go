package routing

import "mealroutes/internal/model"

// HydrateStop overlays live client fields onto a stop's denormalized
// snapshot. The snapshot was taken at stop creation and drifts; live values
// always win when the client record is still around. This is the single
// snapshot-plus-override merge point for the whole service.
func HydrateStop(s model.Stop, clients map[string]model.Client) model.Stop {
    if s.ClientID == nil {
        return s
    }
    c, ok := clients[*s.ClientID]
    if !ok {
        return s
    }
    if n := c.Name(); n != "(Unnamed)" {
        s.Name = n
    }
    if c.Street != "" {
        s.Street = c.Street
    }
    if c.Apt != "" {
        s.Apt = c.Apt
    }
    if c.City != "" {
        s.City = c.City
    }
    if c.State != "" {
        s.State = c.State
    }
    if c.Zip != "" {
        s.Zip = c.Zip
    }
    if c.Phone != "" {
        s.Phone = c.Phone
    }
    if c.Dislikes != "" {
        s.Dislikes = c.Dislikes
    }
    if c.Lat != nil && c.Lng != nil {
        s.Lat, s.Lng = c.Lat, c.Lng
    }
    return s
}

// ResolveOrderDate fills the stop's delivery-date display field from its
// order: direct order_id link first (upcoming table, then orders), falling
// back to the client's most recent non-cancelled order.
func ResolveOrderDate(s model.Stop, ix *OrderIndex) model.Stop {
    if s.OrderID != nil {
        if o, ok := ix.OrderByID(*s.OrderID); ok {
            s.OrderDate = o.ScheduledDeliveryDate
            return s
        }
    }
    if s.ClientID != nil {
        if o, ok := ix.LatestActiveOrder(*s.ClientID); ok {
            oid := o.ID
            s.OrderID = &oid
            s.OrderDate = o.ScheduledDeliveryDate
        }
    }
    return s
}
