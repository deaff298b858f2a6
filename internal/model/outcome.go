package model

import "time"

// OutcomeState is the tag of an Outcome.
type OutcomeState string

const (
	// StateIdle is the zero state: nothing has been requested yet.
	StateIdle    OutcomeState = ""
	StateLoading OutcomeState = "loading"
	StateSuccess OutcomeState = "success"
	StateFailure OutcomeState = "failure"
)

// Outcome is the state of one retrieval: Loading, then exactly one of
// Success or Failure. A settled outcome is never modified; the next
// retrieval replaces it with a fresh Loading value.
type Outcome[T any] struct {
	State       OutcomeState           `json:"state"`
	Options     PaginatedSearchOptions `json:"options"`
	Payload     T                      `json:"payload,omitempty"`
	RequestedAt time.Time              `json:"requested_at"`
	SettledAt   time.Time              `json:"settled_at,omitempty"`
	StatusCode  int                    `json:"status_code,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

// Loading returns the outcome of a request for opts issued at requestedAt.
func Loading[T any](opts PaginatedSearchOptions, requestedAt time.Time) Outcome[T] {
	return Outcome[T]{State: StateLoading, Options: opts, RequestedAt: requestedAt}
}

// Succeeded settles a loading outcome with payload.
func (o Outcome[T]) Succeeded(payload T, settledAt time.Time) Outcome[T] {
	return Outcome[T]{
		State:       StateSuccess,
		Options:     o.Options,
		Payload:     payload,
		RequestedAt: o.RequestedAt,
		SettledAt:   settledAt,
		StatusCode:  200,
	}
}

// Failed settles a loading outcome with an error status.
func (o Outcome[T]) Failed(statusCode int, message string, settledAt time.Time) Outcome[T] {
	return Outcome[T]{
		State:       StateFailure,
		Options:     o.Options,
		RequestedAt: o.RequestedAt,
		SettledAt:   settledAt,
		StatusCode:  statusCode,
		Message:     message,
	}
}

// IsIdle reports whether nothing has been requested yet.
func (o Outcome[T]) IsIdle() bool { return o.State == StateIdle }

// IsLoading reports whether the outcome has not settled yet.
func (o Outcome[T]) IsLoading() bool { return o.State == StateLoading }

// HasSucceeded reports whether the outcome settled successfully.
func (o Outcome[T]) HasSucceeded() bool { return o.State == StateSuccess }

// HasFailed reports whether the outcome settled with an error.
func (o Outcome[T]) HasFailed() bool { return o.State == StateFailure }

// IsSettled reports whether the outcome reached Success or Failure.
func (o Outcome[T]) IsSettled() bool { return o.HasSucceeded() || o.HasFailed() }
