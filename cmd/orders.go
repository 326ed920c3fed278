package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fusion-swap/config"
	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/order"
)

var ordersLimit int

var ordersCmd = &cobra.Command{
	Use:     "orders [attempt-id]",
	Aliases: []string{"history"},
	Short:   "List recorded swap attempts",
	Long: `List swap attempts recorded in the local order journal, newest first.

The journal records which orders were submitted and which secret indices were
revealed. Secrets themselves are never written to disk.

Examples:
  fusion-swap orders
  fusion-swap orders --limit 5 --json
  fusion-swap orders 3f6c2a1e-8d4b-4f0a-9c1d-2b7e5a9f0c11`,
	Args: cobra.MaximumNArgs(1),
	Run:  runOrders,
}

func init() {
	rootCmd.AddCommand(ordersCmd)

	ordersCmd.Flags().IntVar(&ordersLimit, "limit", 20, "Maximum number of attempts to show")
}

func runOrders(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	journal, err := order.NewJournal(cfg.JournalPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	attempts, err := selectAttempts(journal, args, ordersLimit)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(attempts, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(attempts) == 0 {
		fmt.Printf("\nNo swap attempts recorded in %s\n\n", journal.FilePath())
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SWAP ATTEMPTS")
	fmt.Println(strings.Repeat("=", 90))

	for _, a := range attempts {
		fmt.Printf("\n  %s  %s\n", a.Created.Format("2006-01-02 15:04:05"), getColoredStatus(string(a.State)))
		fmt.Printf("    Route:     %s\n", describeRoute(a))
		if a.OrderHash != "" {
			fmt.Printf("    Order:     %s\n", color.CyanString(a.OrderHash))
		}
		fmt.Printf("    Preset:    %s  Secrets: %d  Revealed: %v\n", a.Preset, a.SecretsCount, a.RevealedIndices)
		if a.ErrorMessage != "" {
			fmt.Printf("    Error:     %s\n", color.RedString(a.ErrorMessage))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d of %d attempts (%s)\n\n", len(attempts), journal.Count(), journal.FilePath())
}

// selectAttempts returns the attempt named by args, or the newest limit attempts
func selectAttempts(journal *order.Journal, args []string, limit int) ([]*order.Attempt, error) {
	if len(args) == 1 {
		a, err := journal.Get(args[0])
		if err != nil {
			return nil, err
		}
		return []*order.Attempt{a}, nil
	}
	attempts := journal.List()
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[:limit]
	}
	return attempts, nil
}

func describeRoute(a *order.Attempt) string {
	src := chainLabel(a.SrcChainID)
	dst := chainLabel(a.DstChainID)
	amount := a.Amount
	symbol := a.SrcToken
	if t, ok := chains.TokenByAddress(a.SrcChainID, a.SrcToken); ok {
		amount = chains.FormatUnits(a.Amount, t.Decimals)
		symbol = t.Symbol
	}
	dstSymbol := a.DstToken
	if t, ok := chains.TokenByAddress(a.DstChainID, a.DstToken); ok {
		dstSymbol = t.Symbol
	}
	return fmt.Sprintf("%s %s on %s -> %s on %s", amount, symbol, src, dstSymbol, dst)
}

func chainLabel(id int64) string {
	if c, ok := chains.ByID(id); ok {
		return c.Name
	}
	return fmt.Sprintf("chain %d", id)
}
