package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fusion-swap/config"
	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/order"
	"fusion-swap/pkg/parser"
	"fusion-swap/pkg/types"
	"fusion-swap/pkg/wallet"
)

// submitAttempts bounds chain switches and transient relayer failures
const submitAttempts = 4

var (
	fromChain    string
	toChain      string
	presetName   string
	noConfirm    bool
	approveMax   bool
	detachSubmit bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> [on <chain>] to <dest-token> [on <chain>]",
	Short: "Perform a cross-chain token swap",
	Long: `Swap tokens across EVM chains using 1inch Fusion+.

The order is signed with the configured private key (FUSION_SWAP_PRIVATE_KEY)
and handed to the relayer. The command then watches resolvers fill the order
and reveals one hashlock secret per fill once its escrows exist on both chains.
Keep it running until the swap completes: secrets live only in memory.

Examples:
  # Cross-chain stablecoin swap
  fusion-swap swap 100 USDC on eth to USDC on polygon

  # Chains as flags, slower auction
  fusion-swap swap 0.5 WETH to USDC --from-chain arbitrum --to-chain base --preset slow

  # Skip all confirmations and approve unlimited spending
  fusion-swap swap 100 USDC on eth to USDT on bsc --yes --approve-max`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain name or id")
	swapCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain name or id")
	swapCmd.Flags().StringVar(&presetName, "preset", "", "Auction preset: fast, medium or slow (default: fast)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().BoolVar(&approveMax, "approve-max", false, "Approve unlimited spending when allowance is insufficient")
	swapCmd.Flags().BoolVar(&detachSubmit, "no-watch", false, "Exit after submission without revealing secrets (the swap will refund)")
}

// swapPlan is a swap request resolved against the chain registry
type swapPlan struct {
	Request  *types.SwapRequest
	Src      chains.Chain
	Dst      chains.Chain
	SrcToken chains.Token
	DstToken chains.Token
	Amount   *big.Int
}

// Params converts the plan into quote parameters
func (p *swapPlan) Params(walletAddress, preset string) fusion.QuoteParams {
	return fusion.QuoteParams{
		SrcChainID:    p.Src.ID,
		DstChainID:    p.Dst.ID,
		SrcToken:      p.SrcToken.Address,
		DstToken:      p.DstToken.Address,
		Amount:        p.Amount.String(),
		WalletAddress: walletAddress,
		Preset:        preset,
	}
}

// parseSwapArgs parses and resolves the swap command shared by quote and swap
func parseSwapArgs(args []string) (*swapPlan, error) {
	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}

	if fromChain != "" {
		req.SourceChain = fromChain
	}
	if toChain != "" {
		req.DestChain = toChain
	}
	req.Preset = strings.ToLower(presetName)

	return resolveSwap(req)
}

func resolveSwap(req *types.SwapRequest) (*swapPlan, error) {
	src, err := chains.Find(req.SourceChain)
	if err != nil && req.SourceChain != "" {
		return nil, err
	}
	dst, err := chains.Find(req.DestChain)
	if err != nil && req.DestChain != "" {
		return nil, err
	}
	if req.SourceChain != "" {
		req.SourceChain = src.Name
	}
	if req.DestChain != "" {
		req.DestChain = dst.Name
	}
	if err := parser.ValidateSwapRequest(req); err != nil {
		return nil, err
	}
	if req.Preset != "" && !chains.IsPreset(req.Preset) {
		return nil, fmt.Errorf("%w: %s (use one of %s)", fusion.ErrInvalidPreset, req.Preset, strings.Join(chains.Presets, ", "))
	}

	srcToken, err := chains.FindToken(src.ID, req.SourceToken)
	if err != nil {
		return nil, err
	}
	dstToken, err := chains.FindToken(dst.ID, req.DestToken)
	if err != nil {
		return nil, err
	}
	amount, err := chains.ParseUnits(req.Amount, srcToken.Decimals)
	if err != nil {
		return nil, err
	}

	return &swapPlan{
		Request:  req,
		Src:      src,
		Dst:      dst,
		SrcToken: srcToken,
		DstToken: dstToken,
		Amount:   amount,
	}, nil
}

func runSwap(cmd *cobra.Command, args []string) {
	plan, err := parseSwapArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	log := newLogger(cmd)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if err := cfg.RequireWallet(); err != nil {
		printError(err)
		os.Exit(1)
	}

	w, err := wallet.New(cfg.PrivateKey, plan.Src.ID, cfg.Networks())
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer w.Close()
	if !noConfirm && !jsonOutput {
		w.SetPrompter(confirmPrompt)
	}

	journal, err := order.NewJournal(cfg.JournalPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	coord, err := order.NewCoordinator(order.Config{
		API:         fusion.NewClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout),
		Wallet:      w,
		Allowance:   w,
		Spender:     common.HexToAddress(cfg.Spender),
		Journal:     journal,
		Logger:      log,
		ChainLookup: cfg.Chain,
		QuoteTTL:    cfg.QuoteTTL,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get quote with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	preset := plan.Request.Preset
	if preset == "" {
		preset = chains.Presets[0]
	}
	quote, err := coord.FetchQuote(ctx, plan.Params(w.Address().Hex(), preset))
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	plan.Request.Preset = preset

	if verbose {
		fmt.Printf("\nQuote received:\n")
		quoteJSON, _ := json.MarshalIndent(quote, "", "  ")
		fmt.Println(string(quoteJSON))
	}

	display, err := newQuoteDisplay(plan, quote)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !jsonOutput {
		displayQuote(display)
	}

	// Ask for confirmation
	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if err := buildOrder(ctx, coord, w, plan, s, jsonOutput); err != nil {
		printError(err)
		os.Exit(1)
	}

	if _, err := coord.Sign(ctx); err != nil {
		if errors.Is(err, fusion.ErrUserRejected) {
			fmt.Println("\nSignature rejected. Swap cancelled.")
			os.Exit(0)
		}
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		s.Suffix = " Submitting order..."
		s.Start()
	}
	orderHash, err := submitOrder(ctx, coord, log)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		color.Green("\n✓ Order submitted")
		fmt.Printf("  Order Hash: %s\n", color.CyanString(orderHash))
	}

	if detachSubmit {
		if !jsonOutput {
			color.Yellow("\nNot watching: the secrets are discarded and the order will refund after its timelocks.")
		}
		printSwapResult(coord, jsonOutput)
		return
	}

	if err := monitorOrder(ctx, coord, cfg.PollInterval, plan, jsonOutput); err != nil {
		if errors.Is(err, context.Canceled) {
			color.Yellow("\nStopped watching. Unrevealed fills will refund after their timelocks.")
			fmt.Printf("Resume status checks with: fusion-swap status %s\n", orderHash)
			os.Exit(1)
		}
		printError(err)
		os.Exit(1)
	}

	printSwapResult(coord, jsonOutput)
}

// buildOrder builds the order, approving the spender first when the
// allowance is too low
func buildOrder(ctx context.Context, coord *order.Coordinator, w *wallet.KeyWallet, plan *swapPlan, s *spinner.Spinner, jsonOutput bool) error {
	if !jsonOutput {
		s.Suffix = " Building order..."
		s.Start()
	}
	_, err := coord.Build(ctx)
	if !jsonOutput {
		s.Stop()
	}

	var allowErr *fusion.InsufficientAllowanceError
	if !errors.As(err, &allowErr) {
		return err
	}

	amount := allowErr.Need
	if approveMax {
		amount = wallet.MaxUint256
	}
	if !jsonOutput {
		color.Yellow("\nAllowance for %s is %s, need %s.",
			plan.SrcToken.Symbol,
			chains.FormatUnits(allowErr.Have.String(), plan.SrcToken.Decimals),
			chains.FormatUnits(allowErr.Need.String(), plan.SrcToken.Decimals))
	}

	tx, err := w.Approve(ctx, plan.Src.ID, common.HexToAddress(allowErr.Token), common.HexToAddress(allowErr.Spender), amount)
	if err != nil {
		if tx != (common.Hash{}) {
			return fmt.Errorf("approval %s failed: %w", tx.Hex(), err)
		}
		return err
	}
	if !jsonOutput {
		color.Green("✓ Approval confirmed")
		fmt.Printf("  Transaction: %s\n", color.CyanString(tx.Hex()))
		s.Suffix = " Building order..."
		s.Start()
	}

	_, err = coord.Build(ctx)
	if !jsonOutput {
		s.Stop()
	}
	return err
}

// submitOrder submits the signed order, retrying after a chain switch or a
// transient relayer failure
func submitOrder(ctx context.Context, coord *order.Coordinator, log *slog.Logger) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= submitAttempts; attempt++ {
		hash, err := coord.Submit(ctx)
		if err == nil || errors.Is(err, fusion.ErrAlreadySubmitted) {
			return hash, nil
		}
		lastErr = err

		var mismatch *fusion.NetworkMismatchError
		if errors.As(err, &mismatch) {
			log.Info("wallet switched chain, retrying submission", "from", mismatch.Have, "to", mismatch.Want)
			continue
		}

		var ue *fusion.UpstreamError
		if errors.As(err, &ue) && ue.Transient() && attempt < submitAttempts {
			log.Warn("relayer unavailable, retrying", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
			continue
		}
		return "", err
	}
	return "", lastErr
}

// monitorOrder polls the order and reveals secrets until the attempt ends
func monitorOrder(ctx context.Context, coord *order.Coordinator, interval time.Duration, plan *swapPlan, jsonOutput bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastStatus fusion.OrderState
	lastState := coord.State()

	if !jsonOutput {
		fmt.Println("\nWatching order (press Ctrl+C to stop)...")
	}

	for {
		status, err := coord.Poll(ctx)
		switch {
		case errors.Is(err, fusion.ErrStatusUnavailable):
			if !jsonOutput {
				color.Yellow("  Status unavailable, retrying: %v", err)
			}
		case err != nil:
			return err
		default:
			if !jsonOutput && status.Status != lastStatus {
				fmt.Printf("[%s] Status: %s  Fills: %d  Remaining: %s %s\n",
					time.Now().Format("15:04:05"),
					getColoredStatus(string(status.Status)),
					len(status.Fills),
					chains.FormatUnits(status.RemainingMakerAmount, plan.SrcToken.Decimals),
					plan.SrcToken.Symbol)
			}
			lastStatus = status.Status

			revealed, rerr := coord.RevealReadyFills(ctx)
			if len(revealed) > 0 && !jsonOutput {
				color.Green("  ✓ Revealed secret for fill(s) %v", revealed)
			}
			if rerr != nil && !errors.Is(rerr, fusion.ErrNothingReadyYet) && !errors.Is(rerr, fusion.ErrInvalidTransition) {
				if !jsonOutput {
					color.Yellow("  Secret reveal failed, retrying next poll: %v", rerr)
				}
			}
		}

		if state := coord.State(); state != lastState {
			if !jsonOutput {
				fmt.Printf("  State: %s -> %s\n", lastState, state)
			}
			lastState = state
		}
		if coord.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printSwapResult(coord *order.Coordinator, jsonOutput bool) {
	snap := coord.Snapshot()

	if jsonOutput {
		output := map[string]interface{}{
			"attempt_id":       snap.AttemptID,
			"quote_id":         snap.QuoteID,
			"order_hash":       snap.OrderHash,
			"preset":           snap.Preset,
			"secrets_count":    snap.SecretsCount,
			"revealed_indices": snap.Revealed,
			"state":            snap.State,
		}
		if snap.Status != nil {
			output["status"] = snap.Status.Status
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	switch snap.State {
	case order.StateCompleted:
		printSuccess(color.GreenString("✓ Swap completed. Revealed %d secret(s).", len(snap.Revealed)))
	case order.StateCancelled, order.StateExpired:
		printSuccess(color.YellowString("Order %s. Funds in escrow return after the cancellation timelock.", snap.State))
	case order.StateFailed:
		printSuccess(color.RedString("Swap failed after repeated rejections."))
	default:
		printSuccess(fmt.Sprintf("Order %s is %s.", snap.OrderHash, snap.State))
	}
}

func newQuoteDisplay(plan *swapPlan, quote *fusion.Quote) (*types.QuoteDisplay, error) {
	preset, err := quote.Preset(plan.Request.Preset)
	if err != nil {
		return nil, err
	}
	srcAmount := quote.SrcTokenAmount
	if srcAmount == "" {
		srcAmount = plan.Amount.String()
	}
	return &types.QuoteDisplay{
		QuoteID:           quote.QuoteID,
		SourceAmount:      chains.FormatUnits(srcAmount, plan.SrcToken.Decimals),
		SourceToken:       plan.SrcToken.Symbol,
		SourceChain:       plan.Src.Name,
		DestAmount:        chains.FormatUnits(quote.DstTokenAmount, plan.DstToken.Decimals),
		DestToken:         plan.DstToken.Symbol,
		DestChain:         plan.Dst.Name,
		Preset:            plan.Request.Preset,
		RecommendedPreset: quote.RecommendedPreset,
		AuctionDuration:   preset.AuctionDuration,
		SecretsCount:      preset.SecretsCount,
		PartialFills:      preset.AllowPartialFills,
		PriceImpact:       quote.PriceImpactPercent,
	}, nil
}

func displayQuote(q *types.QuoteDisplay) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Quote ID:          %s\n", color.CyanString(q.QuoteID))
	fmt.Printf("  From:              %s %s on %s\n", q.SourceAmount, color.YellowString(q.SourceToken), q.SourceChain)
	fmt.Printf("  To:                ~%s %s on %s\n", q.DestAmount, color.YellowString(q.DestToken), q.DestChain)
	fmt.Printf("  Preset:            %s", q.Preset)
	if q.RecommendedPreset != "" && q.RecommendedPreset != q.Preset {
		fmt.Printf(" (recommended: %s)", q.RecommendedPreset)
	}
	fmt.Println()
	fmt.Printf("  Auction Duration:  %d seconds\n", q.AuctionDuration)
	fmt.Printf("  Secrets:           %d", q.SecretsCount)
	if q.PartialFills {
		fmt.Print(" (partial fills allowed)")
	}
	fmt.Println()
	if q.PriceImpact != 0 {
		fmt.Printf("  Price Impact:      %.2f%%\n", q.PriceImpact)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSwap() bool {
	return confirmPrompt("Proceed with swap?")
}

// confirmPrompt asks a yes/no question on stdin; it doubles as the wallet's
// approval prompt
func confirmPrompt(message string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", message)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
