package purchase

import (
	"errors"
	"fmt"

	"github.com/Additional-Code/handoff/internal/entity"
)

// ErrInvalidTransition is matched by every rejected status change,
// including a retried completion of an already completed order.
var ErrInvalidTransition = errors.New("invalid order transition")

// TransitionError carries the rejected edge.
type TransitionError struct {
	From entity.OrderStatus
	To   entity.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var transitions = map[entity.OrderStatus][]entity.OrderStatus{
	entity.StatusPending:          {entity.StatusAwaitingPickup, entity.StatusAwaitingDelivery, entity.StatusCancelled},
	entity.StatusAwaitingPickup:   {entity.StatusCompleted, entity.StatusCancelled},
	entity.StatusAwaitingDelivery: {entity.StatusOutForDelivery, entity.StatusCompleted, entity.StatusCancelled},
	entity.StatusOutForDelivery:   {entity.StatusCompleted, entity.StatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge. Completed and
// cancelled have no outgoing edges.
func CanTransition(from, to entity.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns a TransitionError for illegal edges.
func checkTransition(from, to entity.OrderStatus) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// initialStatus is where a new order goes once created.
func initialStatus(method entity.DeliveryMethod) entity.OrderStatus {
	if method == entity.DeliveryDelivery {
		return entity.StatusAwaitingDelivery
	}
	return entity.StatusAwaitingPickup
}
