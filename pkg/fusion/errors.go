package fusion

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidPreset is returned when a preset is absent from the quote
	ErrInvalidPreset = errors.New("preset not offered by quote")

	// ErrUserRejected is returned when the wallet owner declines a request
	ErrUserRejected = errors.New("request rejected by user")

	// ErrMalformedTypedData is returned when a built order cannot be signed
	ErrMalformedTypedData = errors.New("malformed typed data")

	// ErrStatusUnavailable marks a failed status poll. The last known
	// status is kept by the caller.
	ErrStatusUnavailable = errors.New("order status unavailable")

	// ErrNothingReadyYet is informational: no fill is ready for a secret
	ErrNothingReadyYet = errors.New("no fill is ready to accept a secret yet")

	// ErrUnknownChain is returned by a wallet that has no entry for a chain
	ErrUnknownChain = errors.New("chain not configured in wallet")

	// ErrMissingField is returned when an upstream payload lacks a required field
	ErrMissingField = errors.New("missing required field")

	// ErrAlreadySubmitted is returned when an order was already handed to
	// the relayer. The order hash accompanying it is still valid.
	ErrAlreadySubmitted = errors.New("order already submitted")

	// ErrStaleBuild is returned when a signed order is too old to resubmit
	// and has to be rebuilt from a fresh quote
	ErrStaleBuild = errors.New("built order is stale, fetch a new quote")

	// ErrInvalidTransition is returned for operations the current state
	// does not allow
	ErrInvalidTransition = errors.New("operation not allowed in current state")
)

// UpstreamError is a non-2xx response from the Fusion+ API
type UpstreamError struct {
	Status      int
	Description string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Description)
}

// Transient reports whether the same request may succeed unchanged
func (e *UpstreamError) Transient() bool {
	return e.Status >= 500 || e.Status == 429
}

// NetworkMismatchError is returned when the wallet is on a different chain
// than the order requires. A chain switch has been requested; the caller must
// retry explicitly.
type NetworkMismatchError struct {
	Want int64
	Have int64
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("wallet is on chain %d, order requires chain %d; switched network, retry submission", e.Have, e.Want)
}

// InsufficientAllowanceError blocks a swap until an approval confirms
type InsufficientAllowanceError struct {
	Token   string
	Spender string
	Have    *big.Int
	Need    *big.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient allowance for %s: have %s, need %s (approve %s first)",
		e.Token, e.Have, e.Need, e.Spender)
}

// IsUpstream reports whether err carries an UpstreamError
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
