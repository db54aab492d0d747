package subscription

import (
	"fmt"
	"strings"
)

// Recurrence is the delivery cadence of a plan
type Recurrence string

const (
	RecurrenceOneTime   Recurrence = "one-time"
	RecurrenceRecurring Recurrence = "recurring"
)

// IsValid checks if the recurrence is known
func (r Recurrence) IsValid() bool {
	return r == RecurrenceOneTime || r == RecurrenceRecurring
}

// String returns the string representation of Recurrence
func (r Recurrence) String() string {
	return string(r)
}

// ParseRecurrence parses a cadence name. "monthly" is accepted as an alias of recurring.
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "one-time", "onetime", "once":
		return RecurrenceOneTime, nil
	case "recurring", "monthly":
		return RecurrenceRecurring, nil
	}
	return "", fmt.Errorf("unknown recurrence %q", s)
}

// PlanState is the configuration progress of a plan.
// States are strictly ordered; an earlier step can always be revisited.
type PlanState string

const (
	PlanStateUnconfigured     PlanState = "UNCONFIGURED"
	PlanStateRecurrenceChosen PlanState = "RECURRENCE_CHOSEN"
	PlanStateDatesChosen      PlanState = "DATES_CHOSEN"
	PlanStateProductsSelected PlanState = "PRODUCTS_SELECTED"
	PlanStateAddressEntered   PlanState = "ADDRESS_ENTERED"
	PlanStateReadyForPayment  PlanState = "READY_FOR_PAYMENT"
)

var stateOrder = map[PlanState]int{
	PlanStateUnconfigured:     0,
	PlanStateRecurrenceChosen: 1,
	PlanStateDatesChosen:      2,
	PlanStateProductsSelected: 3,
	PlanStateAddressEntered:   4,
	PlanStateReadyForPayment:  5,
}

// IsValid checks if the state is a valid PlanState
func (s PlanState) IsValid() bool {
	_, ok := stateOrder[s]
	return ok
}

// String returns the string representation of PlanState
func (s PlanState) String() string {
	return string(s)
}

// AtLeast reports whether s is the same as or further along than other
func (s PlanState) AtLeast(other PlanState) bool {
	return stateOrder[s] >= stateOrder[other]
}

// CanTransitionTo checks if a user step may move the plan from s to target.
// Any backward move is allowed; a step advances at most one state. Recomputing
// after an edit can skip ahead when later data was kept, e.g. a saved address.
func (s PlanState) CanTransitionTo(target PlanState) bool {
	if !s.IsValid() || !target.IsValid() {
		return false
	}
	return stateOrder[target] <= stateOrder[s]+1
}
