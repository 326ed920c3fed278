package order

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/secrets"
)

func newCoordinator(t *testing.T, api *fakeAPI, w *fakeWallet, mutate func(*Config)) *Coordinator {
	t.Helper()
	cfg := Config{API: api, Wallet: w, Logger: discard}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

// signedCoordinator drives a coordinator to Signed
func signedCoordinator(t *testing.T, api *fakeAPI, w *fakeWallet, p fusion.QuoteParams) *Coordinator {
	t.Helper()
	c := newCoordinator(t, api, w, nil)
	ctx := context.Background()

	if _, err := c.FetchQuote(ctx, p); err != nil {
		t.Fatalf("fetch quote: %v", err)
	}
	if _, err := c.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := c.Sign(ctx); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if c.State() != StateSigned {
		t.Fatalf("expected signed, got %s", c.State())
	}
	return c
}

func TestCoordinatorSingleSecretLifecycle(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1, "medium": 2})}
	w := newFakeWallet(1)
	c := signedCoordinator(t, api, w, params(1, 137, "fast"))
	ctx := context.Background()

	orderHash, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(api.submits) != 1 {
		t.Fatalf("expected one submission, got %d", len(api.submits))
	}
	if api.submits[0].SecretHashes != nil {
		t.Fatalf("single-secret order must omit secretHashes")
	}
	if api.submits[0].Extension != "0x" || api.submits[0].SrcChainID != 1 || api.submits[0].QuoteID != "quote-1" {
		t.Fatalf("unexpected payload %+v", api.submits[0])
	}
	if orderHash != orderHashFor(api.builds[0]) {
		t.Fatalf("submit must return the order hash from build")
	}

	status, err := c.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status.Status.IsTerminal() || len(status.Fills) != 0 || c.State() != StateMonitoring {
		t.Fatalf("expected pending status with no fills, got %s/%d in %s", status.Status, len(status.Fills), c.State())
	}

	if _, err := c.RevealReadyFills(ctx); !errors.Is(err, fusion.ErrNothingReadyYet) {
		t.Fatalf("expected ErrNothingReadyYet, got %v", err)
	}

	api.setStatus(&fusion.OrderStatus{
		Status: fusion.OrderFilled,
		Fills:  []fusion.Fill{escrowFill(true, true)},
	})
	if _, err := c.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if c.State() != StateFilled {
		t.Fatalf("expected filled, got %s", c.State())
	}

	revealed, err := c.RevealReadyFills(ctx)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if len(revealed) != 1 || revealed[0] != 0 {
		t.Fatalf("expected index 0, got %v", revealed)
	}
	if c.State() != StateCompleted || !c.Done() {
		t.Fatalf("expected completed, got %s", c.State())
	}

	preimage, err := hexutil.Decode(api.secrets[0].Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	if secrets.Hash(preimage) != c.SecretHashes()[0] {
		t.Fatalf("disclosed secret does not match committed hash")
	}

	snap := c.Snapshot()
	var sawRevealed bool
	for _, tr := range snap.Transitions {
		if tr.To == StateSecretsRevealed {
			sawRevealed = true
		}
	}
	if !sawRevealed {
		t.Fatalf("completion must pass through %s", StateSecretsRevealed)
	}
}

func TestCoordinatorMultiSecretPartialFills(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1, "medium": 4})}
	c := signedCoordinator(t, api, newFakeWallet(1), params(1, 137, "medium"))
	ctx := context.Background()

	if _, err := c.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	hashes := api.submits[0].SecretHashes
	if len(hashes) != 4 {
		t.Fatalf("expected 4 secret hashes, got %d", len(hashes))
	}
	for i, h := range c.SecretHashes() {
		if hashes[i] != h.Hex() {
			t.Fatalf("hash %d does not match the built order", i)
		}
	}

	api.setStatus(&fusion.OrderStatus{
		Status: fusion.OrderPartiallyFilled,
		Fills:  []fusion.Fill{escrowFill(true, true), escrowFill(true, false)},
	})
	if _, err := c.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if c.State() != StatePartiallyFilled {
		t.Fatalf("expected partially filled, got %s", c.State())
	}

	revealed, err := c.RevealReadyFills(ctx)
	if err != nil || len(revealed) != 1 || revealed[0] != 0 {
		t.Fatalf("expected [0], got %v (%v)", revealed, err)
	}
	if _, err := c.RevealReadyFills(ctx); !errors.Is(err, fusion.ErrNothingReadyYet) {
		t.Fatalf("expected ErrNothingReadyYet on repeat, got %v", err)
	}

	api.setStatus(&fusion.OrderStatus{
		Status: fusion.OrderFilled,
		Fills:  []fusion.Fill{escrowFill(true, true), escrowFill(true, true)},
	})
	if _, err := c.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	revealed, err = c.RevealReadyFills(ctx)
	if err != nil || len(revealed) != 1 || revealed[0] != 1 {
		t.Fatalf("expected [1], got %v (%v)", revealed, err)
	}
	if len(api.secrets) != 2 {
		t.Fatalf("expected 2 disclosures, got %d", len(api.secrets))
	}
	if c.State() != StateCompleted {
		t.Fatalf("expected completed, got %s", c.State())
	}
}

func TestCoordinatorChainMismatch(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	w := newFakeWallet(137, 1)
	c := signedCoordinator(t, api, w, params(1, 137, "fast"))
	ctx := context.Background()

	_, err := c.Submit(ctx)
	var mismatch *fusion.NetworkMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected NetworkMismatchError, got %v", err)
	}
	if mismatch.Want != 1 || mismatch.Have != 137 {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
	if c.State() != StateSigned {
		t.Fatalf("expected to remain signed, got %s", c.State())
	}
	if len(api.submits) != 0 {
		t.Fatalf("must not submit on the wrong chain")
	}
	if len(w.switches) != 1 || w.switches[0] != 1 {
		t.Fatalf("expected a switch to chain 1, got %v", w.switches)
	}

	if _, err := c.Submit(ctx); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if c.State() != StateSubmitted || w.signs != 1 {
		t.Fatalf("expected submitted without re-signing, got %s after %d signs", c.State(), w.signs)
	}
}

func TestCoordinatorAddsUnknownChain(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	w := newFakeWallet(137)
	c := signedCoordinator(t, api, w, params(8453, 137, "fast"))

	_, err := c.Submit(context.Background())
	var mismatch *fusion.NetworkMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected NetworkMismatchError, got %v", err)
	}
	if len(w.added) != 1 || w.added[0].ID != 8453 || w.added[0].RPC == "" {
		t.Fatalf("expected Base to be added with an RPC, got %+v", w.added)
	}
	if active, _ := w.ChainID(context.Background()); active != 8453 {
		t.Fatalf("expected active chain 8453, got %d", active)
	}
	if c.State() != StateSigned {
		t.Fatalf("expected to remain signed, got %s", c.State())
	}
}

func TestCoordinatorUserRejectedStaysBuilt(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	w := newFakeWallet(1)
	w.reject = true
	c := newCoordinator(t, api, w, nil)
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	if _, err := c.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := c.Sign(ctx); !errors.Is(err, fusion.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if c.State() != StateBuilt {
		t.Fatalf("expected built, got %s", c.State())
	}

	w.reject = false
	if _, err := c.Sign(ctx); err != nil {
		t.Fatalf("sign after rejection: %v", err)
	}
	if c.State() != StateSigned {
		t.Fatalf("expected signed, got %s", c.State())
	}
}

func TestCoordinatorSubmitExactlyOnce(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := signedCoordinator(t, api, newFakeWallet(1), params(1, 137, "fast"))
	ctx := context.Background()

	first, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := c.Submit(ctx)
	if !errors.Is(err, fusion.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if second != first {
		t.Fatalf("order hash changed on resubmission")
	}
	if len(api.submits) != 1 {
		t.Fatalf("expected a single network submission, got %d", len(api.submits))
	}
	if _, err := c.FetchQuote(ctx, params(1, 137, "fast")); !errors.Is(err, fusion.ErrInvalidTransition) {
		t.Fatalf("a submitted attempt must not accept a new quote, got %v", err)
	}
}

func TestCoordinatorFetchQuoteFailureReturnsIdle(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := newCoordinator(t, api, newFakeWallet(1), nil)
	ctx := context.Background()

	if _, err := c.FetchQuote(ctx, params(1, 137, "fast")); err != nil {
		t.Fatalf("fetch quote: %v", err)
	}
	if _, err := c.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}

	api.quoteErr = &fusion.UpstreamError{Status: 400, Description: "amount too small"}
	if _, err := c.FetchQuote(ctx, params(1, 137, "fast")); !fusion.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
	if _, err := c.Build(ctx); !errors.Is(err, fusion.ErrInvalidTransition) {
		t.Fatalf("build without a quote must fail, got %v", err)
	}
}

func TestCoordinatorRebuildRegeneratesSecrets(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := newCoordinator(t, api, newFakeWallet(1), nil)
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	first, err := c.Build(ctx)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := c.Sign(ctx); err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := c.Build(ctx)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if api.builds[0][0] == api.builds[1][0] {
		t.Fatalf("rebuild must use a fresh secret")
	}
	if first.OrderHash == second.OrderHash {
		t.Fatalf("new secrets must change the order hash")
	}
	if c.State() != StateBuilt {
		t.Fatalf("rebuild must discard the signature, state %s", c.State())
	}
}

func TestCoordinatorInvalidPreset(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := newCoordinator(t, api, newFakeWallet(1), nil)
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "slow"))
	if _, err := c.Build(ctx); !errors.Is(err, fusion.ErrInvalidPreset) {
		t.Fatalf("expected ErrInvalidPreset, got %v", err)
	}
	if c.State() != StateQuoted {
		t.Fatalf("expected quoted, got %s", c.State())
	}
}

func TestCoordinatorRepeatedRejectionFails(t *testing.T) {
	api := &fakeAPI{
		quote:    testQuote(map[string]int{"fast": 1}),
		buildErr: &fusion.UpstreamError{Status: 400, Description: "quote expired"},
	}
	c := newCoordinator(t, api, newFakeWallet(1), nil)
	ctx := context.Background()
	c.FetchQuote(ctx, params(1, 137, "fast"))

	for i := 0; i < DefaultMaxRejections-1; i++ {
		if _, err := c.Build(ctx); !fusion.IsUpstream(err) {
			t.Fatalf("expected upstream error, got %v", err)
		}
		if c.State() != StateQuoted {
			t.Fatalf("rejection %d: expected quoted, got %s", i+1, c.State())
		}
	}
	c.Build(ctx)
	if c.State() != StateFailed || !c.Done() {
		t.Fatalf("expected failed after %d rejections, got %s", DefaultMaxRejections, c.State())
	}

	api.buildErr = nil
	if _, err := c.FetchQuote(ctx, params(1, 137, "fast")); err != nil {
		t.Fatalf("a failed attempt may start over: %v", err)
	}
	if c.Snapshot().Rejections != 0 {
		t.Fatalf("fresh quote must reset the rejection count")
	}
}

func TestCoordinatorTransientErrorsDoNotFail(t *testing.T) {
	api := &fakeAPI{
		quote:    testQuote(map[string]int{"fast": 1}),
		buildErr: &fusion.UpstreamError{Status: 503, Description: "unavailable"},
	}
	c := newCoordinator(t, api, newFakeWallet(1), nil)
	ctx := context.Background()
	c.FetchQuote(ctx, params(1, 137, "fast"))

	for i := 0; i < DefaultMaxRejections+1; i++ {
		c.Build(ctx)
	}
	if c.State() != StateQuoted {
		t.Fatalf("transient errors must not fail the attempt, got %s", c.State())
	}
}

func TestCoordinatorInsufficientAllowanceBlocks(t *testing.T) {
	allowance := &fakeAllowance{err: &fusion.InsufficientAllowanceError{Token: usdcMainnet}}
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := newCoordinator(t, api, newFakeWallet(1), func(cfg *Config) { cfg.Allowance = allowance })
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	_, err := c.Build(ctx)
	var insufficient *fusion.InsufficientAllowanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientAllowanceError, got %v", err)
	}
	if len(api.builds) != 0 || c.State() != StateQuoted {
		t.Fatalf("build must wait for the approval, state %s", c.State())
	}

	allowance.err = nil
	if _, err := c.Build(ctx); err != nil {
		t.Fatalf("build after approval: %v", err)
	}
	c.Sign(ctx)
	if _, err := c.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if allowance.calls != 3 {
		t.Fatalf("expected allowance checks before build and submit, got %d", allowance.calls)
	}
}

func TestCoordinatorStaleRetry(t *testing.T) {
	api := &fakeAPI{
		quote:     testQuote(map[string]int{"fast": 1}),
		submitErr: &fusion.UpstreamError{Status: 502, Description: "bad gateway"},
	}
	c := newCoordinator(t, api, newFakeWallet(1), func(cfg *Config) { cfg.QuoteTTL = time.Minute })
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	c.Build(ctx)
	c.Sign(ctx)

	if _, err := c.Submit(ctx); !fusion.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if c.State() != StateSigned {
		t.Fatalf("failed submit must stay signed, got %s", c.State())
	}

	api.quote.FetchedAt = time.Now().Add(-time.Hour)
	if _, err := c.Submit(ctx); !errors.Is(err, fusion.ErrStaleBuild) {
		t.Fatalf("expected ErrStaleBuild on stale retry, got %v", err)
	}
	if len(api.submits) != 0 {
		t.Fatalf("stale order must not be submitted")
	}
}

func TestCoordinatorPollFailureKeepsStatus(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := signedCoordinator(t, api, newFakeWallet(1), params(1, 137, "fast"))
	ctx := context.Background()
	c.Submit(ctx)

	api.setStatus(&fusion.OrderStatus{Status: fusion.OrderPartiallyFilled, Fills: []fusion.Fill{escrowFill(true, false)}})
	if _, err := c.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	api.statusErr = &fusion.UpstreamError{Status: 500, Description: "boom"}
	last, err := c.Poll(ctx)
	if !errors.Is(err, fusion.ErrStatusUnavailable) {
		t.Fatalf("expected ErrStatusUnavailable, got %v", err)
	}
	if last == nil || last.Status != fusion.OrderPartiallyFilled {
		t.Fatalf("last known status lost: %+v", last)
	}
	if c.State() != StatePartiallyFilled || c.Snapshot().Status != last {
		t.Fatalf("failed poll must not change state, got %s", c.State())
	}
}

func TestCoordinatorCancelledIsTerminal(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := signedCoordinator(t, api, newFakeWallet(1), params(1, 137, "fast"))
	ctx := context.Background()
	c.Submit(ctx)

	api.setStatus(&fusion.OrderStatus{Status: fusion.OrderCancelled, Fills: []fusion.Fill{escrowFill(true, true)}})
	c.Poll(ctx)
	if c.State() != StateCancelled || !c.Done() {
		t.Fatalf("expected cancelled, got %s", c.State())
	}
	if _, err := c.RevealReadyFills(ctx); !errors.Is(err, fusion.ErrInvalidTransition) {
		t.Fatalf("expected disclosure to be refused, got %v", err)
	}
	if len(api.secrets) != 0 {
		t.Fatalf("no secret may be disclosed for a cancelled order")
	}

	api.setStatus(&fusion.OrderStatus{Status: fusion.OrderFilled})
	c.Poll(ctx)
	if c.State() != StateCancelled {
		t.Fatalf("terminal state must stick, got %s", c.State())
	}
}

func TestCoordinatorMalformedTypedDataRequiresRebuild(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := newCoordinator(t, api, newFakeWallet(1), nil)
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	built, _ := c.Build(ctx)
	built.TypedData.Domain = fusion.TypedDomain{}

	if _, err := c.Sign(ctx); !errors.Is(err, fusion.ErrMalformedTypedData) {
		t.Fatalf("expected ErrMalformedTypedData, got %v", err)
	}
	if c.State() != StateQuoted {
		t.Fatalf("expected quoted, got %s", c.State())
	}
	if _, err := c.Sign(ctx); !errors.Is(err, fusion.ErrInvalidTransition) {
		t.Fatalf("sign without a build must fail, got %v", err)
	}
}

func TestCoordinatorJournalsAttempt(t *testing.T) {
	journal, err := NewJournal(filepath.Join(t.TempDir(), "orders.json"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	w := newFakeWallet(1)
	c := newCoordinator(t, api, w, func(cfg *Config) { cfg.Journal = journal })
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	c.Build(ctx)
	c.Sign(ctx)
	orderHash, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	a, ok := journal.FindByOrderHash(orderHash)
	if !ok {
		t.Fatalf("attempt not journaled")
	}
	if !a.Submitted || a.State != StateSubmitted || a.QuoteID != "quote-1" || a.SecretsCount != 1 {
		t.Fatalf("unexpected attempt %+v", a)
	}
	if journal.Count() != 1 {
		t.Fatalf("expected one attempt, got %d", journal.Count())
	}
}

func TestCoordinatorCompletesWhenStatusHashCaseDiffers(t *testing.T) {
	journal, err := NewJournal(filepath.Join(t.TempDir(), "orders.json"))
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1}), upperHash: true}
	c := newCoordinator(t, api, newFakeWallet(1), func(cfg *Config) { cfg.Journal = journal })
	ctx := context.Background()

	c.FetchQuote(ctx, params(1, 137, "fast"))
	c.Build(ctx)
	c.Sign(ctx)
	orderHash, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	api.setStatus(&fusion.OrderStatus{
		Status: fusion.OrderFilled,
		Fills:  []fusion.Fill{escrowFill(true, true)},
	})
	status, err := c.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if status.OrderHash != orderHash {
		t.Fatalf("status hash = %s, want %s", status.OrderHash, orderHash)
	}

	revealed, err := c.RevealReadyFills(ctx)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if len(revealed) != 1 || revealed[0] != 0 {
		t.Fatalf("expected index 0, got %v", revealed)
	}
	if c.State() != StateCompleted || !c.Done() {
		t.Fatalf("expected completed, got %s", c.State())
	}
	if got := journal.Revealed(orderHash); len(got) != 1 || got[0] != 0 {
		t.Fatalf("journal revealed = %v, want [0]", got)
	}
}

func TestCoordinatorFilledWithoutFillsCompletes(t *testing.T) {
	api := &fakeAPI{quote: testQuote(map[string]int{"fast": 1})}
	c := signedCoordinator(t, api, newFakeWallet(1), params(1, 137, "fast"))
	ctx := context.Background()

	if _, err := c.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	api.setStatus(&fusion.OrderStatus{Status: fusion.OrderFilled})
	if _, err := c.Poll(ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if c.State() != StateCompleted || !c.Done() {
		t.Fatalf("expected completed, got %s", c.State())
	}
	if len(api.secrets) != 0 {
		t.Fatalf("no secret should be disclosed, got %d", len(api.secrets))
	}
}
