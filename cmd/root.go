package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"fusion-swap/pkg/fusion"
)

var rootCmd = &cobra.Command{
	Use:   "fusion-swap",
	Short: "A CLI for cross-chain swaps using 1inch Fusion+",
	Long: `fusion-swap is a command-line tool for trustless cross-chain token swaps
using 1inch Fusion+. It quotes, builds, signs and submits an order, then
watches resolvers fill it and reveals the hashlock secrets as escrows become
ready on both chains.

Examples:
  fusion-swap quote 100 USDC on eth to USDC on polygon
  fusion-swap swap 100 USDC on eth to USDC on polygon --preset fast
  fusion-swap status <order-hash> --watch
  fusion-swap chains
  fusion-swap relay --listen :8787`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// newLogger writes structured logs to stderr. Without --verbose only
// warnings are shown so they do not interleave with the spinner.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var w io.Writer = os.Stderr
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if jsonOutput && !verbose {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// relayLogger logs at info level for long-running servers
func relayLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func printError(err error) {
	fmt.Printf("\nError: %v\n", err)
	if hint := errorHint(err); hint != "" {
		fmt.Printf("Hint: %s\n", hint)
	}
	fmt.Println()
}

// errorHint suggests a next step for errors returned by the 1inch API
func errorHint(err error) string {
	if !fusion.IsUpstream(err) {
		return ""
	}
	var ue *fusion.UpstreamError
	errors.As(err, &ue)
	switch {
	case ue.Status == 401 || ue.Status == 403:
		return "check FUSION_SWAP_API_KEY"
	case ue.Transient():
		return "the 1inch API is unavailable, retry shortly"
	default:
		return "the 1inch API rejected the request"
	}
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
