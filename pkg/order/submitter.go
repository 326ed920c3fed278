package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"fusion-swap/pkg/fusion"
)

// OrderAPI accepts signed orders
type OrderAPI interface {
	SubmitOrder(ctx context.Context, payload fusion.SubmitPayload) error
}

// SubmitRequest is everything the relayer needs for one order
type SubmitRequest struct {
	Signed       *fusion.SignedOrder
	Built        *fusion.BuiltOrder
	SrcChainID   int64
	SecretsCount int
	SecretHashes []common.Hash
}

func (r SubmitRequest) validate() error {
	if r.Signed == nil || r.Built == nil {
		return fmt.Errorf("signed and built order are required")
	}
	if r.Signed.QuoteID == "" {
		return fmt.Errorf("submit: %w: quoteId", fusion.ErrMissingField)
	}
	if err := r.Built.Validate(); err != nil {
		return err
	}
	if r.SrcChainID <= 0 {
		return fmt.Errorf("invalid source chain %d", r.SrcChainID)
	}
	if r.SecretsCount < 1 {
		return fmt.Errorf("secretsCount must be at least 1, got %d", r.SecretsCount)
	}
	if r.SecretsCount > 1 && len(r.SecretHashes) != r.SecretsCount {
		return fmt.Errorf("order needs %d secret hashes, got %d", r.SecretsCount, len(r.SecretHashes))
	}
	return nil
}

// Payload renders the relayer submit body. Single-secret orders omit the
// hash list; the relayer takes the hash from the build step.
func (r SubmitRequest) Payload() fusion.SubmitPayload {
	extension := r.Built.Extension
	if extension == "" {
		extension = "0x"
	}
	p := fusion.SubmitPayload{
		Order:      r.Signed.Order,
		Signature:  r.Signed.Signature,
		QuoteID:    r.Signed.QuoteID,
		SrcChainID: r.SrcChainID,
		Extension:  extension,
	}
	if r.SecretsCount > 1 {
		p.SecretHashes = fusion.HashStrings(r.SecretHashes)
	}
	return p
}

// Submitter hands signed orders to the relayer at most once per
// quoteId+orderHash
type Submitter struct {
	api     OrderAPI
	journal *Journal
	log     *slog.Logger

	mu        sync.Mutex
	submitted map[string]bool
}

// NewSubmitter creates a submitter. journal may be nil, in which case
// duplicates are only caught within this process.
func NewSubmitter(api OrderAPI, journal *Journal, log *slog.Logger) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{
		api:       api,
		journal:   journal,
		log:       log,
		submitted: make(map[string]bool),
	}
}

// Submit sends the order and returns the order hash computed at build time.
// A repeated call for an order that was already accepted makes no network
// call and returns the same hash.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	orderHash := req.Built.OrderHash
	key := req.Signed.QuoteID + "/" + orderHash

	// Held across the call so concurrent duplicates cannot both go out
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitted[key] || (s.journal != nil && s.journal.IsSubmitted(req.Signed.QuoteID, orderHash)) {
		s.submitted[key] = true
		s.log.Info("order already submitted, skipping", "order_hash", orderHash, "quote_id", req.Signed.QuoteID)
		return orderHash, nil
	}

	if err := s.api.SubmitOrder(ctx, req.Payload()); err != nil {
		return "", err
	}

	s.submitted[key] = true
	if s.journal != nil {
		if err := s.journal.MarkSubmitted(req.Signed.QuoteID, orderHash); err != nil {
			s.log.Warn("failed to journal submission", "order_hash", orderHash, "error", err)
		}
	}
	s.log.Info("order submitted", "order_hash", orderHash, "src_chain", req.SrcChainID, "secrets", req.SecretsCount)

	return orderHash, nil
}

// isSubmitted reports whether the order was accepted
func (s *Submitter) isSubmitted(quoteID, orderHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitted[quoteID+"/"+orderHash] {
		return true
	}
	return s.journal != nil && s.journal.IsSubmitted(quoteID, orderHash)
}
