// Package order drives a single Fusion+ swap attempt from quote to settled
// secrets: submission, fill monitoring and per-fill secret disclosure.
package order

import (
	"time"

	"fusion-swap/pkg/fusion"
)

// State is the coordinator's position in the order lifecycle
type State string

const (
	StateIdle            State = "idle"
	StateQuoted          State = "quoted"
	StateBuilt           State = "built"
	StateSigned          State = "signed"
	StateSubmitted       State = "submitted"
	StateMonitoring      State = "monitoring"
	StatePartiallyFilled State = "partially-filled"
	StateFilled          State = "filled"
	StateCancelled       State = "cancelled"
	StateExpired         State = "expired"
	StateSecretsRevealed State = "secrets-revealed"
	StateCompleted       State = "completed"
	StateFailed          State = "failed" // repeated upstream rejection
)

// IsTerminal reports whether the attempt is over
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateExpired, StateFailed:
		return true
	default:
		return false
	}
}

// PreSubmission reports whether the order has not reached the relayer yet
func (s State) PreSubmission() bool {
	switch s {
	case StateIdle, StateQuoted, StateBuilt, StateSigned, StateFailed:
		return true
	default:
		return false
	}
}

// Monitorable reports whether the order can be polled
func (s State) Monitorable() bool {
	switch s {
	case StateSubmitted, StateMonitoring, StatePartiallyFilled, StateFilled, StateSecretsRevealed:
		return true
	default:
		return false
	}
}

// stateForStatus maps an upstream order status onto a coordinator state
func stateForStatus(s fusion.OrderState) State {
	switch s {
	case fusion.OrderPartiallyFilled:
		return StatePartiallyFilled
	case fusion.OrderFilled, fusion.OrderExecuted:
		return StateFilled
	case fusion.OrderCancelled, fusion.OrderRefunding, fusion.OrderRefunded:
		return StateCancelled
	case fusion.OrderExpired:
		return StateExpired
	default:
		return StateMonitoring
	}
}

// Transition records one state change
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}
