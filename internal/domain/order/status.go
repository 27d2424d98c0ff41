package order

import "github.com/go-faster/errors"

// ErrInvalidStatus is returned when a raw status string is not part of the
// order lifecycle enumeration.
var ErrInvalidStatus = errors.New("unknown order status")

// Status is the order lifecycle state. Transitions only move forward:
//
//	pending → paid → shipped → delivered
//	pending → cancelled
//	paid → cancelled
//
// delivered and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions is the single authoritative transition table. Every mutating
// entry point goes through it; handlers never compare status strings.
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

// ParseStatus validates a raw status string against the enumeration.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// CanTransition reports whether the order may move from s to target.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no outgoing transition exists from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// SourcesFor returns every status from which target is directly reachable.
// This is the source set for the conditional UPDATE that performs the
// transition as a single compare-and-set.
func SourcesFor(target Status) []Status {
	var from []Status
	for src, targets := range transitions {
		for _, t := range targets {
			if t == target {
				from = append(from, src)
			}
		}
	}
	return from
}
