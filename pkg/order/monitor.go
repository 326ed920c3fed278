package order

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"fusion-swap/pkg/fusion"
)

// StatusAPI reports order status
type StatusAPI interface {
	OrderStatus(ctx context.Context, orderHash string) (*fusion.OrderStatus, error)
}

// Monitor polls order status one round trip at a time. The caller owns the
// polling interval.
type Monitor struct {
	api StatusAPI

	mu   sync.Mutex
	last map[string]*fusion.OrderStatus
}

// NewMonitor creates a monitor
func NewMonitor(api StatusAPI) *Monitor {
	return &Monitor{api: api, last: make(map[string]*fusion.OrderStatus)}
}

// Poll fetches the current status. On failure it returns the last known
// status together with an error wrapping fusion.ErrStatusUnavailable. An
// accepted status carries orderHash exactly as given, whatever case the
// upstream used.
func (m *Monitor) Poll(ctx context.Context, orderHash string) (*fusion.OrderStatus, error) {
	if orderHash == "" {
		return nil, fmt.Errorf("order hash is required")
	}

	status, err := m.api.OrderStatus(ctx, orderHash)
	if err == nil && !strings.EqualFold(status.OrderHash, orderHash) {
		err = fmt.Errorf("status is for order %s", status.OrderHash)
	}
	if err != nil {
		return m.Last(orderHash), fmt.Errorf("%w: %w", fusion.ErrStatusUnavailable, err)
	}

	canonical := *status
	canonical.OrderHash = orderHash
	status = &canonical

	m.mu.Lock()
	m.last[orderHash] = status
	m.mu.Unlock()

	return status, nil
}

// Last returns the last successfully fetched status, or nil
func (m *Monitor) Last(orderHash string) *fusion.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last[orderHash]
}
