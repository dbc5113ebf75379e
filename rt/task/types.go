package task

import "fmt"

// State is the lifecycle state of a task.
type State int

const (
	StateExecuting State = iota
	StateCompleted
	StateFailed
	StateCancelled
)

// IsTerminal reports whether the state is terminal (anything but executing).
func (s State) IsTerminal() bool { return s != StateExecuting }

func (s State) String() string {
	switch s {
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Priority is the scheduling priority carried by a subscription.
//
// A task's effective priority is the maximum over its live subscriptions,
// or DefaultPriority while the subscription set is momentarily empty.
type Priority int

const (
	PriorityVeryLow Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityVeryHigh
)

// DefaultPriority is the priority used when none is specified.
const DefaultPriority = PriorityNormal

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "very-low"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very-high"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Progress describes partial completion of a unit of work.
type Progress struct {
	Completed int64
	Total     int64
}

// EventKind discriminates the Event union.
type EventKind int

const (
	// EventProgress carries Event.Progress.
	EventProgress EventKind = iota
	// EventValue carries Event.Value; Event.Final marks the terminal value.
	EventValue
	// EventError carries Event.Err and is always terminal.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventValue:
		return "value"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a closed union of the notifications a subscriber can observe.
// Exactly one of Progress, Value(+Final), or Err is meaningful, per Kind.
type Event[T any] struct {
	Kind EventKind

	Value T
	Final bool

	Progress Progress

	Err error
}

// Observer receives a task's events. It is invoked outside the task's lock
// and may re-enter the task.
type Observer[T any] func(Event[T])

// Dependency is the upstream half of a task chain: a subscription to another
// task, type-erased so chains can change value type per stage.
//
// *Subscription implements Dependency.
type Dependency interface {
	Unsubscribe()
	SetPriority(Priority)
}
