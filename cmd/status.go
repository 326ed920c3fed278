package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fusion-swap/config"
	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/order"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <order-hash>",
	Short: "Check the status of a swap",
	Long: `Check the status of a Fusion+ order by its order hash, including its fills
and which of them are ready to accept a secret.

Examples:
  fusion-swap status 0x1234...abcd
  fusion-swap status 0x1234...abcd --watch
  fusion-swap status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 0, "Polling interval in seconds (default: poll_interval from config)")
}

// statusView bundles what the status command shows for an order
type statusView struct {
	Status     *fusion.OrderStatus `json:"status"`
	Ready      []fusion.ReadyFill  `json:"ready_fills"`
	ReadyError string              `json:"ready_fills_error,omitempty"`
	Attempt    *order.Attempt      `json:"attempt,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) {
	orderHash := strings.TrimSpace(args[0])
	jsonOutput, _ := cmd.Flags().GetBool("json")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	client := fusion.NewClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)

	var attempt *order.Attempt
	if journal, err := order.NewJournal(cfg.JournalPath); err == nil {
		attempt, _ = journal.FindByOrderHash(orderHash)
	}

	if watchStatus {
		interval := cfg.PollInterval
		if watchInterval > 0 {
			interval = time.Duration(watchInterval) * time.Second
		}
		watchSwapStatus(client, orderHash, attempt, interval, jsonOutput)
	} else {
		checkSwapStatus(client, orderHash, attempt, jsonOutput)
	}
}

// fetchStatusView fails only when the order status itself is unavailable
func fetchStatusView(ctx context.Context, client *fusion.Client, orderHash string, attempt *order.Attempt) (*statusView, error) {
	status, err := client.OrderStatus(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	view := &statusView{Status: status, Attempt: attempt}

	if !status.Status.IsTerminal() {
		ready, err := client.ReadyToAcceptSecretFills(ctx, orderHash)
		if err != nil {
			view.ReadyError = err.Error()
		} else {
			view.Ready = ready.Fills
		}
	}
	return view, nil
}

func checkSwapStatus(client *fusion.Client, orderHash string, attempt *order.Attempt, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking order status..."
		s.Start()
	}

	view, err := fetchStatusView(context.Background(), client, orderHash, attempt)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(view, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(view)
	}
}

func watchSwapStatus(client *fusion.Client, orderHash string, attempt *order.Attempt, interval time.Duration, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nWatching order status (Order Hash: %s)\n", color.CyanString(orderHash))
	fmt.Printf("Checking every %s. Press Ctrl+C to stop.\n\n", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Check immediately first, then periodically
		if checkAndDisplayStatus(ctx, client, orderHash, attempt) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkAndDisplayStatus reports whether the order reached a terminal status
func checkAndDisplayStatus(ctx context.Context, client *fusion.Client, orderHash string, attempt *order.Attempt) bool {
	view, err := fetchStatusView(ctx, client, orderHash, attempt)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			color.Red("Error: %v", err)
		}
		return false
	}

	displayStatus(view)
	return view.Status.Status.IsTerminal()
}

func displayStatus(view *statusView) {
	status := view.Status

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ORDER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Order Hash:      %s\n", color.CyanString(status.OrderHash))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status.Status)))
	if status.Validation != "" && status.Validation != "valid" {
		fmt.Printf("  Validation:      %s\n", color.RedString(status.Validation))
	}
	fmt.Printf("  Route:           chain %d -> chain %d\n", status.SrcChainID, status.DstChainID)
	if status.CreatedAt > 0 {
		fmt.Printf("  Created:         %s\n", time.UnixMilli(status.CreatedAt).Format("2006-01-02 15:04:05"))
	}
	if status.Deadline > 0 {
		fmt.Printf("  Deadline:        %s\n", time.Unix(status.Deadline, 0).Format("2006-01-02 15:04:05"))
	}

	src, hasSrc := chains.Token{}, false
	if view.Attempt != nil {
		src, hasSrc = chains.TokenByAddress(view.Attempt.SrcChainID, view.Attempt.SrcToken)
	}
	if status.RemainingMakerAmount != "" {
		if hasSrc {
			fmt.Printf("  Remaining:       %s %s\n", chains.FormatUnits(status.RemainingMakerAmount, src.Decimals), src.Symbol)
		} else {
			fmt.Printf("  Remaining:       %s\n", status.RemainingMakerAmount)
		}
	}

	secretsCount := 1
	if view.Attempt != nil && view.Attempt.SecretsCount > 0 {
		secretsCount = view.Attempt.SecretsCount
	}

	// Display fills
	for i, fill := range status.Fills {
		idx, ok := order.SecretIndex(i, secretsCount)
		escrow := color.YellowString("awaiting escrows")
		if fill.EscrowReady() {
			escrow = color.GreenString("escrows ready")
		}
		revealed := ""
		if ok && view.Attempt != nil && view.Attempt.HasRevealed(idx) {
			revealed = color.GreenString(" secret revealed")
		}
		amount := fill.FilledMakerAmount
		if hasSrc {
			amount = chains.FormatUnits(amount, src.Decimals) + " " + src.Symbol
		}
		fmt.Printf("  Fill #%d:         %s  %s  %s%s\n", i, fill.Status, amount, escrow, revealed)
		if fill.TxHash != "" {
			fmt.Printf("    Tx:            %s\n", color.HiBlackString(fill.TxHash))
		}
	}

	if len(view.Ready) > 0 {
		idx := make([]string, 0, len(view.Ready))
		for _, f := range view.Ready {
			idx = append(idx, fmt.Sprint(f.Idx))
		}
		fmt.Printf("  Ready Fills:     %s\n", color.MagentaString(strings.Join(idx, ", ")))
	}
	if view.ReadyError != "" {
		fmt.Printf("  Ready Fills:     %s\n", color.YellowString("unavailable (%s)", view.ReadyError))
	}

	if view.Attempt != nil {
		fmt.Printf("  Local State:     %s\n", view.Attempt.State)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "FILLED", "EXECUTED", "COMPLETED":
		return color.GreenString(status)
	case "PENDING", "PARTIALLY-FILLED", "SUBMITTED", "MONITORING":
		return color.YellowString(status)
	case "CANCELLED", "EXPIRED", "REFUNDED", "FAILED":
		return color.RedString(status)
	case "REFUNDING":
		return color.MagentaString(status)
	default:
		return status
	}
}
