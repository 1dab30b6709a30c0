package fetcher

// Status is the lifecycle position of a Fetcher.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is the observable triple of a Fetcher. Data is nil until a request
// succeeds; it is left in place while a later request is loading.
type State[T any] struct {
	Data    *T
	Loading bool
	Error   *APIError
}

// Status derives the lifecycle position from the triple.
func (s State[T]) Status() Status {
	switch {
	case s.Loading:
		return StatusLoading
	case s.Error != nil:
		return StatusFailed
	case s.Data != nil:
		return StatusSucceeded
	default:
		return StatusIdle
	}
}
