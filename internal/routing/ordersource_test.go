package routing

import (
    "reflect"
    "testing"

    "mealroutes/internal/model"
)

func stopFor(id, clientID, driverID string) model.Stop {
    s := model.Stop{ID: id, Day: "monday"}
    if clientID != "" {
        s.ClientID = &clientID
    }
    if driverID != "" {
        s.AssignedDriverID = &driverID
    }
    return s
}

func TestStopIDsForPrefersRouteOrderRows(t *testing.T) {
    // All three representations present and deliberately disagreeing: the
    // relational rows must win.
    assigned := []model.Stop{
        stopFor("s1", "c1", "d1"),
        stopFor("s2", "c2", "d1"),
        stopFor("s3", "c3", "d1"),
    }
    entries := []model.RouteOrderEntry{
        {DriverID: "d1", ClientID: "c3", Position: 0},
        {DriverID: "d1", ClientID: "c1", Position: 1},
        {DriverID: "d1", ClientID: "c2", Position: 2},
    }
    legacy := []model.LegacyRoute{{ID: "d1", StopIDs: []string{"s2", "s1", "s3"}}}
    v := NewRouteOrderView(entries, legacy)
    d := model.Driver{ID: "d1", StopIDs: []string{"s1", "s3", "s2"}}

    got := v.StopIDsFor(d, assigned)
    want := []string{"s3", "s1", "s2"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestStopIDsForFallsBackToEmbeddedArray(t *testing.T) {
    assigned := []model.Stop{stopFor("s1", "c1", "d1"), stopFor("s2", "c2", "d1")}
    legacy := []model.LegacyRoute{{ID: "d1", StopIDs: []string{"s1", "s2"}}}
    v := NewRouteOrderView(nil, legacy)
    d := model.Driver{ID: "d1", StopIDs: []string{"s2", "s1"}}

    got := v.StopIDsFor(d, assigned)
    want := []string{"s2", "s1"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestStopIDsForFallsBackToLegacyTable(t *testing.T) {
    assigned := []model.Stop{stopFor("s1", "c1", "d1"), stopFor("s2", "c2", "d1")}
    legacy := []model.LegacyRoute{{ID: "d1", StopIDs: []string{"s2", "s1"}}}
    v := NewRouteOrderView(nil, legacy)
    d := model.Driver{ID: "d1"}

    got := v.StopIDsFor(d, assigned)
    want := []string{"s2", "s1"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestStopIDsForSkipsOrphanRows(t *testing.T) {
    // c9 is in the ordering rows but no longer assigned to d1: skipped, not
    // an error, and the remaining rows keep their relative order.
    assigned := []model.Stop{stopFor("s1", "c1", "d1"), stopFor("s2", "c2", "d1")}
    entries := []model.RouteOrderEntry{
        {DriverID: "d1", ClientID: "c2", Position: 0},
        {DriverID: "d1", ClientID: "c9", Position: 1},
        {DriverID: "d1", ClientID: "c1", Position: 2},
    }
    v := NewRouteOrderView(entries, nil)
    got := v.StopIDsFor(model.Driver{ID: "d1"}, assigned)
    want := []string{"s2", "s1"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestStopIDsForAppendsUnmentionedStops(t *testing.T) {
    assigned := []model.Stop{
        stopFor("s1", "c1", "d1"),
        stopFor("s3", "c3", "d1"),
        stopFor("s2", "c2", "d1"),
    }
    entries := []model.RouteOrderEntry{{DriverID: "d1", ClientID: "c2", Position: 0}}
    v := NewRouteOrderView(entries, nil)
    got := v.StopIDsFor(model.Driver{ID: "d1"}, assigned)
    // s2 from the rows, then the unmentioned stops in id order.
    want := []string{"s2", "s1", "s3"}
    if !reflect.DeepEqual(got, want) {
        t.Fatalf("order = %v want %v", got, want)
    }
}

func TestStopIDsForNoDuplicates(t *testing.T) {
    assigned := []model.Stop{stopFor("s1", "c1", "d1")}
    entries := []model.RouteOrderEntry{
        {DriverID: "d1", ClientID: "c1", Position: 0},
        {DriverID: "d1", ClientID: "c1", Position: 1},
    }
    v := NewRouteOrderView(entries, nil)
    got := v.StopIDsFor(model.Driver{ID: "d1", StopIDs: []string{"s1", "s1"}}, assigned)
    if !reflect.DeepEqual(got, []string{"s1"}) {
        t.Fatalf("duplicate suppression failed: %v", got)
    }
}
