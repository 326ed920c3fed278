package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fusion-swap/config"
	"fusion-swap/pkg/chains"
)

var (
	filterChain  string
	filterSymbol string
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "chains", "ls"},
	Short:   "List supported chains and tokens",
	Long: `List the chains and ERC-20 tokens fusion-swap can route through 1inch Fusion+.

You can filter tokens by chain or symbol.

Examples:
  fusion-swap list-tokens
  fusion-swap list-tokens --chain polygon
  fusion-swap list-tokens --symbol USDC`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain name or id")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

// chainTokens is a chain with the tokens listed for it
type chainTokens struct {
	Chain  chains.Chain   `json:"chain"`
	Tokens []chains.Token `json:"tokens"`
}

func runListTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	listed, err := filterTokens(filterChain, filterSymbol)
	if err != nil {
		printError(err)
		return
	}

	// Config is optional here; only RPC overrides are shown from it
	if cfg, err := config.Load(); err == nil {
		for i := range listed {
			if c, ok := cfg.Chain(listed[i].Chain.ID); ok {
				listed[i].Chain = c
			}
		}
	}

	// Output
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(listed, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayTokens(listed)
	}
}

func filterTokens(chainFilter, symbolFilter string) ([]chainTokens, error) {
	var only int64
	if chainFilter != "" {
		c, err := chains.Find(chainFilter)
		if err != nil {
			return nil, err
		}
		only = c.ID
	}

	var out []chainTokens
	for _, c := range chains.Chains {
		if only != 0 && c.ID != only {
			continue
		}
		var tokens []chains.Token
		for _, t := range chains.Tokens[c.ID] {
			if symbolFilter != "" && !strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(symbolFilter)) {
				continue
			}
			tokens = append(tokens, t)
		}
		if len(tokens) == 0 {
			continue
		}
		out = append(out, chainTokens{Chain: c, Tokens: tokens})
	}
	return out, nil
}

func displayTokens(listed []chainTokens) {
	if len(listed) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	// Sort chains alphabetically
	sort.Slice(listed, func(i, j int) bool { return listed[i].Chain.Name < listed[j].Chain.Name })

	total := 0
	for _, group := range listed {
		color.Cyan("\n%s (chain %d)", strings.ToUpper(group.Chain.Name), group.Chain.ID)
		fmt.Printf("  RPC: %s\n", color.HiBlackString(group.Chain.RPC))
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range group.Tokens {
			fmt.Printf("  %-10s  %2d decimals  %s\n",
				color.YellowString(token.Symbol),
				token.Decimals,
				color.HiBlackString(token.Address))
			total++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", total, len(listed))
}
