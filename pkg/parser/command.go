package parser

import (
	"fmt"
	"regexp"
	"strings"

	"fusion-swap/pkg/types"
)

// Pattern: <amount> <source_token> [ON <chain>] TO <dest_token> [ON <chain>]
// Matches: "100 USDC TO USDC", "1.5 WETH ON ETH TO USDC ON POLYGON"
var swapPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9.]+)(?:\s+ON\s+([A-Z0-9]+))?\s+TO\s+([A-Z0-9.]+)(?:\s+ON\s+([A-Z0-9]+))?$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 100 USDC to USDC"
//   - "1.5 WETH on eth to USDC on polygon"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	// Normalize the command
	command = strings.TrimSpace(strings.ToUpper(command))

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> [on <chain>] to <token> [on <chain>]' (e.g., 'swap 100 USDC on eth to USDC on polygon')")
	}

	return &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: NormalizeTokenSymbol(matches[2]),
		SourceChain: strings.ToLower(matches[3]),
		DestToken:   NormalizeTokenSymbol(matches[4]),
		DestChain:   strings.ToLower(matches[5]),
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.SourceChain == "" {
		return fmt.Errorf("source chain is required (use --from-chain or '<token> on <chain>')")
	}
	if req.DestChain == "" {
		return fmt.Errorf("destination chain is required (use --to-chain or '<token> on <chain>')")
	}
	if req.SourceChain == req.DestChain {
		return fmt.Errorf("source and destination chain must differ for a cross-chain swap")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	// Convert to uppercase for consistency
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	// Fusion+ routes ERC-20s only, so native gas tokens map to their wrapped form
	aliases := map[string]string{
		"ETH":    "WETH",
		"BTC":    "WBTC",
		"USDC.E": "USDC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
