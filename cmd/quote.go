package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fusion-swap/config"
	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/wallet"
)

var quoteWallet string

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> [on <chain>] to <dest-token> [on <chain>]",
	Short: "Show a Fusion+ quote without placing an order",
	Long: `Fetch an indicative quote and print the terms of every auction preset.

Examples:
  fusion-swap quote 100 USDC on eth to USDC on polygon
  fusion-swap quote 1 WETH --from-chain arbitrum --to-chain optimism --wallet 0x...`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source chain name or id")
	quoteCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain name or id")
	quoteCmd.Flags().StringVar(&quoteWallet, "wallet", "", "Maker address (default: address of the configured private key)")
}

func runQuote(cmd *cobra.Command, args []string) {
	plan, err := parseSwapArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	maker, err := makerAddress(cfg, plan.Src.ID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	client := fusion.NewClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	quote, err := client.FetchQuote(context.Background(), plan.Params(maker, ""))
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(quote, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     FUSION+ QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Quote ID:  %s\n", color.CyanString(quote.QuoteID))
	fmt.Printf("  From:      %s %s on %s\n", plan.Request.Amount, color.YellowString(plan.SrcToken.Symbol), plan.Src.Name)
	fmt.Printf("  To:        ~%s %s on %s\n",
		chains.FormatUnits(quote.DstTokenAmount, plan.DstToken.Decimals), color.YellowString(plan.DstToken.Symbol), plan.Dst.Name)
	if quote.Prices.USD.SrcToken != "" {
		fmt.Printf("  Prices:    %s $%s / %s $%s\n", plan.SrcToken.Symbol, quote.Prices.USD.SrcToken, plan.DstToken.Symbol, quote.Prices.USD.DstToken)
	}

	names := make([]string, 0, len(quote.Presets))
	for name := range quote.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("\n  %-8s %-20s %-10s %-8s %s\n", "PRESET", "AUCTION START", "DURATION", "SECRETS", "PARTIAL")
	for _, name := range names {
		p := quote.Presets[name]
		label := name
		if name == quote.RecommendedPreset {
			label = name + "*"
		}
		fmt.Printf("  %-8s %-20s %-10s %-8d %v\n",
			label,
			chains.FormatUnits(p.AuctionStartAmount, plan.DstToken.Decimals),
			fmt.Sprintf("%ds", p.AuctionDuration),
			p.SecretsCount,
			p.AllowPartialFills)
	}
	if quote.RecommendedPreset != "" {
		fmt.Println("\n  * recommended")
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

// makerAddress picks the quote's wallet address from --wallet or the key
func makerAddress(cfg *config.Config, chainID int64) (string, error) {
	if quoteWallet != "" {
		if !common.IsHexAddress(quoteWallet) {
			return "", fmt.Errorf("invalid wallet address %q", quoteWallet)
		}
		return common.HexToAddress(quoteWallet).Hex(), nil
	}
	if err := cfg.RequireWallet(); err != nil {
		return "", fmt.Errorf("%w (or pass --wallet)", err)
	}
	w, err := wallet.New(cfg.PrivateKey, chainID, cfg.Networks())
	if err != nil {
		return "", err
	}
	return w.Address().Hex(), nil
}
