package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fusion-swap/pkg/chains"
)

// DefaultSpender is the 1inch v6 aggregation router
const DefaultSpender = "0x111111125421ca6dc452d289314280a0f8842a65"

// Config holds the application configuration
type Config struct {
	APIKey       string
	BaseURL      string
	PrivateKey   string
	RPC          map[int64]string
	Spender      string
	PollInterval time.Duration
	JournalPath  string
	RelayListen  string
	HTTPTimeout  time.Duration
	QuoteTTL     time.Duration
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".fusion-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("base_url", "https://api.1inch.dev/fusion-plus")
	viper.SetDefault("spender", DefaultSpender)
	viper.SetDefault("poll_interval", 5*time.Second)
	viper.SetDefault("journal_path", "")
	viper.SetDefault("relay.listen", ":8787")
	viper.SetDefault("http_timeout", 30*time.Second)
	viper.SetDefault("quote_ttl", 2*time.Minute)

	// Read from environment variables
	viper.SetEnvPrefix("FUSION_SWAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	rpc, err := parseRPC(viper.GetStringMapString("rpc"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:       viper.GetString("api_key"),
		BaseURL:      viper.GetString("base_url"),
		PrivateKey:   viper.GetString("private_key"),
		RPC:          rpc,
		Spender:      viper.GetString("spender"),
		PollInterval: viper.GetDuration("poll_interval"),
		JournalPath:  viper.GetString("journal_path"),
		RelayListen:  viper.GetString("relay.listen"),
		HTTPTimeout:  viper.GetDuration("http_timeout"),
		QuoteTTL:     viper.GetDuration("quote_ttl"),
	}

	// Validate API key
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("1inch API key not found. Please set FUSION_SWAP_API_KEY environment variable or create a .fusion-swap.yaml config file")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}

	return cfg, nil
}

func parseRPC(raw map[string]string) (map[int64]string, error) {
	out := make(map[int64]string, len(raw))
	for key, url := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			c, ferr := chains.Find(key)
			if ferr != nil {
				return nil, fmt.Errorf("invalid rpc entry %q: %w", key, ferr)
			}
			id = c.ID
		}
		out[id] = url
	}
	return out, nil
}

// RequireWallet checks that a signing key is configured
func (c *Config) RequireWallet() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("private key not found. Please set FUSION_SWAP_PRIVATE_KEY environment variable or add private_key to .fusion-swap.yaml")
	}
	return nil
}

// Chain resolves a chain from the registry with any configured RPC override
func (c *Config) Chain(id int64) (chains.Chain, bool) {
	chain, ok := chains.ByID(id)
	if !ok {
		return chains.Chain{}, false
	}
	if url, ok := c.RPC[id]; ok && url != "" {
		chain.RPC = url
	}
	return chain, true
}

// Networks returns the RPC URL of every supported chain
func (c *Config) Networks() map[int64]string {
	out := make(map[int64]string, len(chains.Chains))
	for _, ch := range chains.Chains {
		if resolved, ok := c.Chain(ch.ID); ok {
			out[ch.ID] = resolved.RPC
		}
	}
	return out
}
