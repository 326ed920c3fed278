package order

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/secrets"
)

// SecretAPI accepts disclosed secrets
type SecretAPI interface {
	SubmitSecret(ctx context.Context, orderHash, secret string) error
}

// SecretIndex maps fill i of an order to the secret that unlocks it. With a
// single secret every fill uses index 0. ok is false when the order has no
// secret for that fill.
func SecretIndex(fill, secretsCount int) (idx int, ok bool) {
	if secretsCount == 1 {
		return 0, true
	}
	if fill < 0 || fill >= secretsCount {
		return 0, false
	}
	return fill, true
}

// ReadyIndices lists the secret indices whose fills have escrows deposited
// on both chains, ascending and without duplicates
func ReadyIndices(status *fusion.OrderStatus, secretsCount int) []int {
	return collectIndices(status, secretsCount, true)
}

// RequiredIndices lists the secret indices needed by every fill seen so far
func RequiredIndices(status *fusion.OrderStatus, secretsCount int) []int {
	return collectIndices(status, secretsCount, false)
}

func collectIndices(status *fusion.OrderStatus, secretsCount int, readyOnly bool) []int {
	if status == nil {
		return nil
	}
	seen := make(map[int]bool)
	var out []int
	for i, fill := range status.Fills {
		if readyOnly && !fill.EscrowReady() {
			continue
		}
		idx, ok := SecretIndex(i, secretsCount)
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Revealer discloses secrets for escrow-ready fills, each index at most once
type Revealer struct {
	api     SecretAPI
	journal *Journal
	log     *slog.Logger

	mu       sync.Mutex
	revealed map[string]map[int]bool
}

// NewRevealer creates a revealer. journal may be nil.
func NewRevealer(api SecretAPI, journal *Journal, log *slog.Logger) *Revealer {
	if log == nil {
		log = slog.Default()
	}
	return &Revealer{
		api:      api,
		journal:  journal,
		log:      log,
		revealed: make(map[string]map[int]bool),
	}
}

// RevealReadyFills discloses the secret of every escrow-ready fill that has
// not been disclosed yet and returns the newly disclosed indices. It returns
// fusion.ErrNothingReadyYet when there is nothing to disclose. On a failed
// disclosure the indices disclosed before it are returned with the error.
func (r *Revealer) RevealReadyFills(ctx context.Context, status *fusion.OrderStatus, set secrets.Set) ([]int, error) {
	if status == nil {
		return nil, fmt.Errorf("no order status to evaluate")
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("order has no secrets")
	}
	switch status.Status {
	case fusion.OrderCancelled, fusion.OrderExpired, fusion.OrderRefunding, fusion.OrderRefunded:
		return nil, fmt.Errorf("%w: order is %s, secrets stay undisclosed", fusion.ErrInvalidTransition, status.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	done := r.revealedLocked(status.OrderHash)

	var pending []int
	for _, idx := range ReadyIndices(status, len(set)) {
		if !done[idx] {
			pending = append(pending, idx)
		}
	}
	if len(pending) == 0 {
		return nil, fusion.ErrNothingReadyYet
	}

	revealed := make([]int, 0, len(pending))
	for _, idx := range pending {
		if err := r.api.SubmitSecret(ctx, status.OrderHash, set[idx].Reveal()); err != nil {
			return revealed, fmt.Errorf("disclose secret %d: %w", idx, err)
		}
		done[idx] = true
		revealed = append(revealed, idx)

		if r.journal != nil {
			if err := r.journal.MarkRevealed(status.OrderHash, idx); err != nil {
				r.log.Warn("failed to journal disclosure", "order_hash", status.OrderHash, "index", idx, "error", err)
			}
		}
		r.log.Info("secret disclosed", "order_hash", status.OrderHash, "index", idx, "hash", set[idx].Hash.Hex())
	}

	return revealed, nil
}

// Revealed lists the disclosed indices of an order, ascending
func (r *Revealer) Revealed(orderHash string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	done := r.revealedLocked(orderHash)
	out := make([]int, 0, len(done))
	for idx := range done {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// revealedLocked returns the disclosed set for an order, seeded from the
// journal on first use
func (r *Revealer) revealedLocked(orderHash string) map[int]bool {
	key := strings.ToLower(orderHash)
	done, ok := r.revealed[key]
	if ok {
		return done
	}
	done = make(map[int]bool)
	if r.journal != nil {
		for _, idx := range r.journal.Revealed(orderHash) {
			done[idx] = true
		}
	}
	r.revealed[key] = done
	return done
}
