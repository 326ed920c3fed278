package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/secrets"
	"fusion-swap/pkg/signer"
)

const (
	// DefaultQuoteTTL bounds how old a quote may be when a failed
	// submission is retried
	DefaultQuoteTTL = 2 * time.Minute

	// DefaultMaxRejections is how many upstream rejections fail an attempt
	DefaultMaxRejections = 3

	// NativeToken is the placeholder address for a chain's gas token
	NativeToken = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"
)

// QuoteAPI fetches quotes and builds orders from them
type QuoteAPI interface {
	FetchQuote(ctx context.Context, p fusion.QuoteParams) (*fusion.Quote, error)
	BuildOrder(ctx context.Context, p fusion.QuoteParams, quote *fusion.Quote, preset string, hashes []common.Hash) (*fusion.BuiltOrder, error)
}

// API is the full upstream surface the coordinator drives
type API interface {
	QuoteAPI
	OrderAPI
	StatusAPI
	SecretAPI
}

// Wallet signs orders and controls which chain is active
type Wallet interface {
	signer.TypedDataSigner
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, c chains.Chain) error
}

// AllowanceChecker verifies ERC-20 allowances before build and submit
type AllowanceChecker interface {
	EnsureAllowance(ctx context.Context, chainID int64, token, spender common.Address, need *big.Int) error
}

// Config wires a Coordinator. API and Wallet are required.
type Config struct {
	API       API
	Wallet    Wallet
	Allowance AllowanceChecker
	Spender   common.Address
	Vault     *secrets.Vault
	Journal   *Journal
	Logger    *slog.Logger

	// ChainLookup resolves a chain for the wallet's add-chain request
	ChainLookup   func(id int64) (chains.Chain, bool)
	QuoteTTL      time.Duration
	MaxRejections int
}

// Snapshot is a read-only view of a coordinator
type Snapshot struct {
	State        State
	AttemptID    string
	QuoteID      string
	Preset       string
	SecretsCount int
	OrderHash    string
	Status       *fusion.OrderStatus
	Revealed     []int
	Rejections   int
	Transitions  []Transition
}

// Coordinator owns one swap attempt. Operations are serialized: at most one
// network or wallet call is in flight. Polling is driven by the caller.
type Coordinator struct {
	api       API
	wallet    Wallet
	allowance AllowanceChecker
	spender   common.Address
	vault     *secrets.Vault
	journal   *Journal
	log       *slog.Logger
	lookup    func(int64) (chains.Chain, bool)
	quoteTTL  time.Duration
	maxReject int

	submitter *Submitter
	monitor   *Monitor
	revealer  *Revealer

	op sync.Mutex

	mu           sync.RWMutex
	state        State
	attemptID    string
	params       fusion.QuoteParams
	preset       string
	terms        fusion.Preset
	quote        *fusion.Quote
	secrets      secrets.Set
	built        *fusion.BuiltOrder
	signed       *fusion.SignedOrder
	orderHash    string
	status       *fusion.OrderStatus
	rejections   int
	submitFailed bool
	transitions  []Transition
}

// NewCoordinator creates a coordinator in the Idle state
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("API client is required")
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}
	if cfg.Vault == nil {
		cfg.Vault = secrets.NewVault()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChainLookup == nil {
		cfg.ChainLookup = chains.ByID
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = DefaultQuoteTTL
	}
	if cfg.MaxRejections <= 0 {
		cfg.MaxRejections = DefaultMaxRejections
	}

	return &Coordinator{
		api:       cfg.API,
		wallet:    cfg.Wallet,
		allowance: cfg.Allowance,
		spender:   cfg.Spender,
		vault:     cfg.Vault,
		journal:   cfg.Journal,
		log:       cfg.Logger,
		lookup:    cfg.ChainLookup,
		quoteTTL:  cfg.QuoteTTL,
		maxReject: cfg.MaxRejections,
		submitter: NewSubmitter(cfg.API, cfg.Journal, cfg.Logger),
		monitor:   NewMonitor(cfg.API),
		revealer:  NewRevealer(cfg.API, cfg.Journal, cfg.Logger),
		state:     StateIdle,
	}, nil
}

// FetchQuote starts a new attempt from a fresh quote. Any earlier quote,
// secrets and built or signed order are discarded. Allowed until the order
// is submitted.
func (c *Coordinator) FetchQuote(ctx context.Context, p fusion.QuoteParams) (*fusion.Quote, error) {
	c.op.Lock()
	defer c.op.Unlock()

	if s := c.State(); !s.PreSubmission() {
		return nil, fmt.Errorf("%w: fetch quote in state %s", fusion.ErrInvalidTransition, s)
	}
	if p.WalletAddress == "" {
		p.WalletAddress = c.wallet.Address().Hex()
	}
	if p.Preset == "" {
		return nil, fmt.Errorf("%w: no preset selected", fusion.ErrInvalidPreset)
	}

	quote, err := c.api.FetchQuote(ctx, p)
	if err != nil {
		c.mu.Lock()
		c.resetLocked()
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.resetLocked()
	c.params = p
	c.preset = p.Preset
	c.quote = quote
	c.setStateLocked(StateQuoted)
	c.mu.Unlock()

	if c.journal != nil {
		a, err := c.journal.Begin(Attempt{
			QuoteID:    quote.QuoteID,
			SrcChainID: p.SrcChainID,
			DstChainID: p.DstChainID,
			SrcToken:   p.SrcToken,
			DstToken:   p.DstToken,
			Amount:     p.Amount,
			Preset:     p.Preset,
		})
		if err != nil {
			c.log.Warn("failed to journal attempt", "quote_id", quote.QuoteID, "error", err)
		} else {
			c.mu.Lock()
			c.attemptID = a.ID
			c.mu.Unlock()
		}
	}

	c.log.Info("quote received", "quote_id", quote.QuoteID, "dst_amount", quote.DstTokenAmount, "preset", p.Preset)
	return quote, nil
}

// Build generates a fresh secret set and builds a signable order from the
// held quote. Rebuilding discards the previous secrets and any signature.
func (c *Coordinator) Build(ctx context.Context) (*fusion.BuiltOrder, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.RLock()
	state, quote, params, preset := c.state, c.quote, c.params, c.preset
	c.mu.RUnlock()

	switch state {
	case StateQuoted, StateBuilt, StateSigned:
	default:
		return nil, fmt.Errorf("%w: build in state %s", fusion.ErrInvalidTransition, state)
	}

	terms, err := quote.Preset(preset)
	if err != nil {
		return nil, err
	}
	if err := c.checkAllowance(ctx, params); err != nil {
		return nil, err
	}

	set, err := c.vault.Generate(terms.SecretsCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secrets: %w", err)
	}
	if err := set.Verify(); err != nil {
		return nil, fmt.Errorf("generated secrets do not match their hashlocks: %w", err)
	}

	built, err := c.api.BuildOrder(ctx, params, quote, preset, set.Hashes())
	if err != nil {
		c.rejected(err)
		return nil, err
	}

	c.mu.Lock()
	c.terms = terms
	c.secrets = set
	c.built = built
	c.signed = nil
	c.submitFailed = false
	c.setStateLocked(StateBuilt)
	c.mu.Unlock()

	c.record(func(a *Attempt) {
		a.OrderHash = built.OrderHash
		a.SecretsCount = terms.SecretsCount
	})
	c.log.Info("order built", "order_hash", built.OrderHash, "secrets", terms.SecretsCount)

	return built, nil
}

// Sign asks the wallet to sign the built order. A rejection leaves the order
// built and signable again; malformed typed data sends the attempt back to
// Quoted for a rebuild.
func (c *Coordinator) Sign(ctx context.Context) (*fusion.SignedOrder, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.RLock()
	state, built, quote := c.state, c.built, c.quote
	c.mu.RUnlock()

	if state != StateBuilt {
		return nil, fmt.Errorf("%w: sign in state %s", fusion.ErrInvalidTransition, state)
	}

	signed, err := signer.Sign(ctx, built, quote.QuoteID, c.wallet)
	if err != nil {
		if errors.Is(err, fusion.ErrMalformedTypedData) {
			c.mu.Lock()
			c.secrets = nil
			c.built = nil
			c.setStateLocked(StateQuoted)
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Lock()
	c.signed = signed
	c.setStateLocked(StateSigned)
	c.mu.Unlock()

	c.log.Info("order signed", "order_hash", built.OrderHash)
	return signed, nil
}

// Submit hands the signed order to the relayer. If the wallet is on the
// wrong chain it requests a switch (adding the chain first if the wallet
// does not know it) and returns a NetworkMismatchError; the caller retries.
func (c *Coordinator) Submit(ctx context.Context) (string, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.RLock()
	state := c.state
	params, quote, built, signed := c.params, c.quote, c.built, c.signed
	terms, set, orderHash, retry := c.terms, c.secrets, c.orderHash, c.submitFailed
	c.mu.RUnlock()

	if !state.PreSubmission() && orderHash != "" {
		return orderHash, fusion.ErrAlreadySubmitted
	}
	if state != StateSigned {
		return "", fmt.Errorf("%w: submit in state %s", fusion.ErrInvalidTransition, state)
	}

	if retry {
		if age := time.Since(quote.FetchedAt); age > c.quoteTTL {
			return "", fmt.Errorf("%w: quote is %s old", fusion.ErrStaleBuild, age.Round(time.Second))
		}
		if err := built.Validate(); err != nil {
			return "", fmt.Errorf("%w: %v", fusion.ErrStaleBuild, err)
		}
	}

	if err := c.ensureChain(ctx, params.SrcChainID); err != nil {
		return "", err
	}
	if err := c.checkAllowance(ctx, params); err != nil {
		return "", err
	}

	hash, err := c.submitter.Submit(ctx, SubmitRequest{
		Signed:       signed,
		Built:        built,
		SrcChainID:   params.SrcChainID,
		SecretsCount: terms.SecretsCount,
		SecretHashes: set.Hashes(),
	})
	if err != nil {
		c.mu.Lock()
		c.submitFailed = true
		c.mu.Unlock()
		c.rejected(err)
		return "", err
	}

	c.mu.Lock()
	c.orderHash = hash
	c.setStateLocked(StateSubmitted)
	c.mu.Unlock()

	return hash, nil
}

// ensureChain makes srcChainID the wallet's active chain. Any switch
// results in a NetworkMismatchError so the caller re-invokes submission.
func (c *Coordinator) ensureChain(ctx context.Context, srcChainID int64) error {
	have, err := c.wallet.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read wallet chain: %w", err)
	}
	if have == srcChainID {
		return nil
	}

	c.log.Info("switching wallet chain", "have", have, "want", srcChainID)
	err = c.wallet.SwitchChain(ctx, srcChainID)
	if errors.Is(err, fusion.ErrUnknownChain) {
		chain, ok := c.lookup(srcChainID)
		if !ok {
			return fmt.Errorf("chain %d is not supported: %w", srcChainID, err)
		}
		if err := c.wallet.AddChain(ctx, chain); err != nil {
			return fmt.Errorf("failed to add chain %s: %w", chain.Name, err)
		}
		err = c.wallet.SwitchChain(ctx, srcChainID)
	}
	if err != nil {
		return fmt.Errorf("failed to switch to chain %d: %w", srcChainID, err)
	}

	return &fusion.NetworkMismatchError{Want: srcChainID, Have: have}
}

func (c *Coordinator) checkAllowance(ctx context.Context, p fusion.QuoteParams) error {
	if c.allowance == nil || strings.EqualFold(p.SrcToken, NativeToken) {
		return nil
	}
	need, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", p.Amount)
	}
	return c.allowance.EnsureAllowance(ctx, p.SrcChainID, common.HexToAddress(p.SrcToken), c.spender, need)
}

// rejected counts upstream rejections and fails the attempt after too many
func (c *Coordinator) rejected(err error) {
	var ue *fusion.UpstreamError
	if !errors.As(err, &ue) || ue.Transient() {
		return
	}

	c.mu.Lock()
	c.rejections++
	n := c.rejections
	if n >= c.maxReject {
		c.setStateLocked(StateFailed)
	}
	c.mu.Unlock()

	c.log.Warn("upstream rejected request", "status", ue.Status, "description", ue.Description, "rejections", n)
	if n >= c.maxReject {
		c.record(func(a *Attempt) { a.ErrorMessage = ue.Error() })
	}
}

// Poll fetches the order status and advances the state from it. On failure
// the last known status is kept and returned with the error.
func (c *Coordinator) Poll(ctx context.Context) (*fusion.OrderStatus, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.RLock()
	state, orderHash, last := c.state, c.orderHash, c.status
	c.mu.RUnlock()

	if !state.Monitorable() && !state.IsTerminal() || orderHash == "" {
		return nil, fmt.Errorf("%w: poll in state %s", fusion.ErrInvalidTransition, state)
	}

	status, err := c.monitor.Poll(ctx, orderHash)
	if err != nil {
		c.log.Warn("status poll failed", "order_hash", orderHash, "error", err)
		return last, err
	}

	c.mu.Lock()
	c.status = status
	if state.Monitorable() {
		c.setStateLocked(stateForStatus(status.Status))
		c.maybeCompleteLocked()
	}
	c.mu.Unlock()

	c.record(func(a *Attempt) { a.LastStatus = string(status.Status) })
	return status, nil
}

// RevealReadyFills discloses the secrets of escrow-ready fills from the last
// polled status. It returns fusion.ErrNothingReadyYet when nothing is due.
func (c *Coordinator) RevealReadyFills(ctx context.Context) ([]int, error) {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.RLock()
	state, status, set := c.state, c.status, c.secrets
	c.mu.RUnlock()

	switch state {
	case StateMonitoring, StatePartiallyFilled, StateFilled:
	default:
		return nil, fmt.Errorf("%w: reveal in state %s", fusion.ErrInvalidTransition, state)
	}

	revealed, err := c.revealer.RevealReadyFills(ctx, status, set)

	c.mu.Lock()
	c.maybeCompleteLocked()
	c.mu.Unlock()

	return revealed, err
}

// maybeCompleteLocked finishes the attempt once the order is filled and every
// fill's secret is disclosed
func (c *Coordinator) maybeCompleteLocked() {
	if c.state != StateFilled && c.state != StateSecretsRevealed {
		return
	}
	// A filled order that reports no fills has nothing left to disclose.
	required := RequiredIndices(c.status, len(c.secrets))
	done := make(map[int]bool)
	for _, idx := range c.revealer.Revealed(c.orderHash) {
		done[idx] = true
	}
	for _, idx := range required {
		if !done[idx] {
			return
		}
	}
	c.setStateLocked(StateSecretsRevealed)
	c.setStateLocked(StateCompleted)
}

// setStateLocked moves to next; the caller holds c.mu
func (c *Coordinator) setStateLocked(next State) {
	if c.state == next {
		return
	}
	c.transitions = append(c.transitions, Transition{From: c.state, To: next, At: time.Now()})
	c.log.Debug("order state changed", "from", c.state, "to", next, "order_hash", c.orderHash)
	c.state = next

	if c.journal != nil && c.attemptID != "" {
		id := c.attemptID
		if err := c.journal.Update(id, func(a *Attempt) { a.State = next }); err != nil {
			c.log.Warn("failed to journal state", "attempt", id, "error", err)
		}
	}
}

// resetLocked drops everything tied to the previous quote
func (c *Coordinator) resetLocked() {
	c.attemptID = ""
	c.params = fusion.QuoteParams{}
	c.preset = ""
	c.terms = fusion.Preset{}
	c.quote = nil
	c.secrets = nil
	c.built = nil
	c.signed = nil
	c.orderHash = ""
	c.status = nil
	c.rejections = 0
	c.submitFailed = false
}

func (c *Coordinator) record(fn func(*Attempt)) {
	c.mu.RLock()
	id := c.attemptID
	c.mu.RUnlock()

	if c.journal == nil || id == "" {
		return
	}
	if err := c.journal.Update(id, fn); err != nil {
		c.log.Warn("failed to update journal", "attempt", id, "error", err)
	}
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done reports whether the attempt reached a terminal state
func (c *Coordinator) Done() bool {
	return c.State().IsTerminal()
}

// SecretHashes returns the secret hashes of the current attempt
func (c *Coordinator) SecretHashes() []common.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secrets.Hashes()
}

// Snapshot returns a copy of the coordinator's state
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		State:        c.state,
		AttemptID:    c.attemptID,
		Preset:       c.preset,
		SecretsCount: c.terms.SecretsCount,
		OrderHash:    c.orderHash,
		Status:       c.status,
		Rejections:   c.rejections,
		Transitions:  append([]Transition(nil), c.transitions...),
	}
	if c.quote != nil {
		s.QuoteID = c.quote.QuoteID
	}
	if c.orderHash != "" {
		s.Revealed = c.revealer.Revealed(c.orderHash)
	}
	return s
}
