package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	SourceChain string
	DestChain   string
	Preset      string
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	QuoteID           string
	SourceAmount      string
	SourceToken       string
	SourceChain       string
	DestAmount        string
	DestToken         string
	DestChain         string
	Preset            string
	RecommendedPreset string
	AuctionDuration   int64
	SecretsCount      int
	PartialFills      bool
	PriceImpact       float64
}
