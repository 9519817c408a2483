package routing

// BestEffort wraps a read result that degrades to an empty value instead of
// surfacing a failure. Display endpoints return the zero value with Degraded
// set when the backing store is unreachable; tests can tell "truly empty"
// apart from "failed and degraded".
type BestEffort[T any] struct {
    Value    T
    Degraded bool
    Err      error
}

func ok[T any](v T) BestEffort[T] {
    return BestEffort[T]{Value: v}
}

func degraded[T any](empty T, err error) BestEffort[T] {
    return BestEffort[T]{Value: empty, Degraded: true, Err: err}
}
