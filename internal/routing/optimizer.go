package routing

import (
    "mealroutes/internal/geo"
)

// ClientPoint is one client's coordinates as fed to the optimizer. Nil
// coordinates mark a client whose position is unknown.
type ClientPoint struct {
    ClientID string
    Lat      *float64
    Lng      *float64
}

func (p ClientPoint) point() (geo.Point, bool) {
    if p.Lat == nil || p.Lng == nil {
        return geo.Point{}, false
    }
    pt := geo.Point{Lat: *p.Lat, Lng: *p.Lng}
    return pt, pt.Valid()
}

// NearestNeighborOrder computes a visiting order over the given clients:
// seed at the southernmost point, then repeatedly hop to the closest
// unvisited point. Ties go to the earlier input position, so the result is
// deterministic for a fixed input. Clients without usable coordinates are
// appended at the end in input order. The output is always a permutation of
// the input ids.
//
// O(n^2); routes are tens of stops, so no spatial index is warranted.
func NearestNeighborOrder(clients []ClientPoint) []string {
    valid := make([]int, 0, len(clients))
    invalid := []int{}
    pts := make([]geo.Point, len(clients))
    for i, c := range clients {
        if pt, ok := c.point(); ok {
            pts[i] = pt
            valid = append(valid, i)
        } else {
            invalid = append(invalid, i)
        }
    }

    out := make([]string, 0, len(clients))
    if len(valid) <= 1 {
        for _, i := range valid {
            out = append(out, clients[i].ClientID)
        }
        for _, i := range invalid {
            out = append(out, clients[i].ClientID)
        }
        return out
    }

    // Seed: minimum latitude, first-encountered on ties.
    seed := valid[0]
    for _, i := range valid[1:] {
        if pts[i].Lat < pts[seed].Lat {
            seed = i
        }
    }

    visited := make(map[int]bool, len(valid))
    visited[seed] = true
    out = append(out, clients[seed].ClientID)
    cur := seed
    for len(out) < len(valid) {
        next := -1
        best := 0.0
        for _, i := range valid {
            if visited[i] {
                continue
            }
            d := geo.HaversineKm(pts[cur], pts[i])
            if next == -1 || d < best {
                next = i
                best = d
            }
        }
        if next == -1 {
            break
        }
        visited[next] = true
        out = append(out, clients[next].ClientID)
        cur = next
    }

    for _, i := range invalid {
        out = append(out, clients[i].ClientID)
    }
    return out
}

// ImproveOrder applies a 2-opt pass over an already-ordered set of clients.
// Clients without coordinates keep their tail position untouched.
func ImproveOrder(clients []ClientPoint, ordered []string) []string {
    byID := map[string]ClientPoint{}
    for _, c := range clients {
        byID[c.ClientID] = c
    }
    pts := []geo.Point{}
    idx := []string{}
    tail := []string{}
    for _, id := range ordered {
        if pt, ok := byID[id].point(); ok {
            pts = append(pts, pt)
            idx = append(idx, id)
        } else {
            tail = append(tail, id)
        }
    }
    if len(idx) < 4 {
        return ordered
    }
    order := make([]int, len(idx))
    for i := range order {
        order[i] = i
    }
    improved := geo.ImproveOrder2Opt(pts, order, 5)
    out := make([]string, 0, len(ordered))
    for _, i := range improved {
        out = append(out, idx[i])
    }
    return append(out, tail...)
}
