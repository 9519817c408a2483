package routing

import (
    "sort"

    "mealroutes/internal/model"
)

// RouteOrderView carries the three representations of stop ordering that a
// day's view is assembled from. driver_route_order rows are the source of
// truth; the embedded stop_ids array and the legacy routes table are
// migration-era fallbacks kept readable behind this one merge.
type RouteOrderView struct {
    Entries      []model.RouteOrderEntry // all rows for the drivers in view
    LegacyRoutes map[string][]string     // routes table: id -> stop_ids
}

func NewRouteOrderView(entries []model.RouteOrderEntry, legacy []model.LegacyRoute) *RouteOrderView {
    v := &RouteOrderView{Entries: entries, LegacyRoutes: map[string][]string{}}
    for _, r := range legacy {
        v.LegacyRoutes[r.ID] = r.StopIDs
    }
    return v
}

// StopIDsFor resolves a driver's ordered stop ids against the driver's
// assigned stops for the day. The assigned_driver_id filter on stops is
// authoritative: ordering rows for clients no longer assigned here are
// orphans and are skipped, not purged. Assigned stops missing from every
// ordering source are appended (id order) so a stop never silently drops
// out of the route.
func (v *RouteOrderView) StopIDsFor(d model.Driver, assigned []model.Stop) []string {
    byClient := map[string]model.Stop{}
    byID := map[string]model.Stop{}
    for _, s := range assigned {
        byID[s.ID] = s
        if s.ClientID != nil && *s.ClientID != "" {
            byClient[*s.ClientID] = s
        }
    }

    ordered := []string{}
    claimed := map[string]bool{}
    add := func(stopID string) {
        if stopID != "" && !claimed[stopID] {
            ordered = append(ordered, stopID)
            claimed[stopID] = true
        }
    }

    rows := make([]model.RouteOrderEntry, 0)
    for _, e := range v.Entries {
        if e.DriverID == d.ID {
            rows = append(rows, e)
        }
    }
    sort.Slice(rows, func(i, j int) bool {
        if rows[i].Position != rows[j].Position {
            return rows[i].Position < rows[j].Position
        }
        return rows[i].ClientID < rows[j].ClientID
    })

    switch {
    case len(rows) > 0:
        for _, e := range rows {
            if s, ok := byClient[e.ClientID]; ok {
                add(s.ID)
            }
        }
    case len(d.StopIDs) > 0:
        for _, id := range d.StopIDs {
            if _, ok := byID[id]; ok {
                add(id)
            }
        }
    default:
        for _, id := range v.LegacyRoutes[d.ID] {
            if _, ok := byID[id]; ok {
                add(id)
            }
        }
    }

    // Leftovers: assigned stops no ordering source mentions.
    rest := []string{}
    for id := range byID {
        if !claimed[id] {
            rest = append(rest, id)
        }
    }
    sort.Strings(rest)
    return append(ordered, rest...)
}
