package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a geographic coordinate pair.
type Point struct {
    Lat float64
    Lng float64
}

// Valid reports whether both coordinates are finite. Zero-zero is treated as
// valid; clients genuinely at null island do not exist in our service area,
// but missing coordinates are modeled as nil pointers upstream, not zeros.
func (p Point) Valid() bool {
    return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// HaversineKm returns the great-circle distance between two points in
// kilometers: d = 2R*asin(sqrt(hav(dLat) + cos(lat1)*cos(lat2)*hav(dLng))).
func HaversineKm(a, b Point) float64 {
    dLat := (b.Lat - a.Lat) * math.Pi / 180
    dLng := (b.Lng - a.Lng) * math.Pi / 180
    lat1 := a.Lat * math.Pi / 180
    lat2 := b.Lat * math.Pi / 180
    h := hav(dLat) + math.Cos(lat1)*math.Cos(lat2)*hav(dLng)
    return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func hav(theta float64) float64 {
    s := math.Sin(theta / 2)
    return s * s
}

// PathDistanceKm sums leg distances along points in the given visiting order.
func PathDistanceKm(points []Point, order []int) float64 {
    total := 0.0
    for i := 0; i < len(order)-1; i++ {
        total += HaversineKm(points[order[i]], points[order[i+1]])
    }
    return total
}

// ImproveOrder2Opt applies a 2-opt pass to shorten the total path. The input
// order is not modified. Used only when a caller explicitly asks for the
// improvement pass; the default route order is plain nearest-neighbor.
func ImproveOrder2Opt(points []Point, order []int, iterations int) []int {
    if iterations <= 0 {
        iterations = 1
    }
    best := append([]int(nil), order...)
    bestDist := PathDistanceKm(points, best)
    n := len(order)
    for it := 0; it < iterations; it++ {
        improved := false
        for i := 1; i < n-2; i++ {
            for k := i + 1; k < n-1; k++ {
                cand := twoOptSwap(best, i, k)
                if d := PathDistanceKm(points, cand); d+1e-9 < bestDist {
                    best = cand
                    bestDist = d
                    improved = true
                }
            }
        }
        if !improved {
            break
        }
    }
    return best
}

func twoOptSwap(ord []int, i, k int) []int {
    out := make([]int, len(ord))
    copy(out, ord[:i])
    pos := i
    for j := k; j >= i; j-- {
        out[pos] = ord[j]
        pos++
    }
    copy(out[pos:], ord[k+1:])
    return out
}
