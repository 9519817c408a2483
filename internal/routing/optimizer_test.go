package routing

import (
    "math"
    "math/rand"
    "reflect"
    "sort"
    "testing"
)

func cp(id string, lat, lng float64) ClientPoint {
    return ClientPoint{ClientID: id, Lat: &lat, Lng: &lng}
}

func TestNearestNeighborThreePoints(t *testing.T) {
    // P3 is southernmost so it seeds the route; P1 is closer to P3 than P2.
    pts := []ClientPoint{
        cp("p1", 40.70, -74.00),
        cp("p2", 40.75, -73.90),
        cp("p3", 40.65, -74.05),
    }
    got := NearestNeighborOrder(pts)
    want := []string{"p3", "p1", "p2"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestNearestNeighborDeterministic(t *testing.T) {
    pts := []ClientPoint{
        cp("a", 40.70, -74.00),
        cp("b", 40.71, -74.01),
        cp("c", 40.72, -74.02),
        cp("d", 40.73, -74.03),
    }
    first := NearestNeighborOrder(pts)
    for i := 0; i < 10; i++ {
        if got := NearestNeighborOrder(pts); !reflect.DeepEqual(got, first) {
            t.Fatalf("run %d differs: %v vs %v", i, got, first)
        }
    }
}

func TestNearestNeighborPermutation(t *testing.T) {
    rng := rand.New(rand.NewSource(7))
    pts := make([]ClientPoint, 0, 30)
    for i := 0; i < 30; i++ {
        pts = append(pts, cp(string(rune('a'+i)), 40+rng.Float64(), -74+rng.Float64()))
    }
    got := NearestNeighborOrder(pts)
    if len(got) != len(pts) {
        t.Fatalf("got %d ids for %d inputs", len(got), len(pts))
    }
    seen := map[string]bool{}
    for _, id := range got {
        if seen[id] {
            t.Fatalf("duplicate id %q in output", id)
        }
        seen[id] = true
    }
}

func TestNearestNeighborInvalidCoordsAppendedInInputOrder(t *testing.T) {
    bad := math.NaN()
    pts := []ClientPoint{
        {ClientID: "x"},
        cp("a", 40.70, -74.00),
        {ClientID: "y", Lat: &bad, Lng: &bad},
        cp("b", 40.60, -74.00),
    }
    got := NearestNeighborOrder(pts)
    if len(got) != 4 {
        t.Fatalf("got %v", got)
    }
    // b is southernmost, then a, then the two invalids in input order.
    want := []string{"b", "a", "x", "y"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestNearestNeighborSeedTieFirstEncountered(t *testing.T) {
    pts := []ClientPoint{
        cp("first", 40.60, -74.00),
        cp("second", 40.60, -73.00),
        cp("north", 40.90, -74.00),
    }
    got := NearestNeighborOrder(pts)
    if got[0] != "first" {
        t.Fatalf("tie on min latitude should seed first-encountered, got %v", got)
    }
}

func TestNearestNeighborSingleAndEmpty(t *testing.T) {
    if got := NearestNeighborOrder(nil); len(got) != 0 {
        t.Fatalf("empty input: %v", got)
    }
    got := NearestNeighborOrder([]ClientPoint{cp("only", 40, -74)})
    if !reflect.DeepEqual(got, []string{"only"}) {
        t.Fatalf("single input: %v", got)
    }
}

func TestImproveOrderKeepsMembership(t *testing.T) {
    rng := rand.New(rand.NewSource(11))
    pts := make([]ClientPoint, 0, 12)
    ids := make([]string, 0, 12)
    for i := 0; i < 12; i++ {
        id := string(rune('a' + i))
        pts = append(pts, cp(id, 40+rng.Float64(), -74+rng.Float64()))
        ids = append(ids, id)
    }
    improved := ImproveOrder(pts, ids)
    a := append([]string(nil), ids...)
    b := append([]string(nil), improved...)
    sort.Strings(a)
    sort.Strings(b)
    if !reflect.DeepEqual(a, b) {
        t.Fatalf("improved order is not a permutation: %v vs %v", improved, ids)
    }
}

func TestImproveOrderShortInputUnchanged(t *testing.T) {
    pts := []ClientPoint{cp("a", 40, -74), cp("b", 41, -74), cp("c", 42, -74)}
    in := []string{"c", "a", "b"}
    if got := ImproveOrder(pts, in); !reflect.DeepEqual(got, in) {
        t.Fatalf("short input should pass through, got %v", got)
    }
}
