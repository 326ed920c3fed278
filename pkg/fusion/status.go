package fusion

import "fmt"

// OrderState is the lifecycle status reported by the orders API
type OrderState string

const (
	OrderPending         OrderState = "pending"
	OrderPartiallyFilled OrderState = "partially-filled"
	OrderFilled          OrderState = "filled"
	OrderExecuted        OrderState = "executed"
	OrderCancelled       OrderState = "cancelled"
	OrderExpired         OrderState = "expired"
	OrderRefunding       OrderState = "refunding"
	OrderRefunded        OrderState = "refunded"
)

// IsTerminal reports whether further polling is pointless
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderExecuted, OrderCancelled, OrderExpired, OrderRefunded:
		return true
	default:
		return false
	}
}

// Escrow sides and actions as reported in fill escrow events
const (
	SideSrc = "src"
	SideDst = "dst"

	ActionSrcEscrowCreated = "src_escrow_created"
	ActionDstEscrowCreated = "dst_escrow_created"
	ActionWithdrawn        = "withdrawn"
	ActionFundsRescued     = "funds_rescued"
	ActionEscrowCancelled  = "escrow_cancelled"
)

// EscrowEvent is an on-chain action on one side of a fill's escrow pair
type EscrowEvent struct {
	TransactionHash string `json:"transactionHash"`
	Escrow          string `json:"escrow"`
	Side            string `json:"side"`
	Action          string `json:"action"`
	BlockTimestamp  int64  `json:"blockTimestamp"`
}

// IsDeposit reports whether the event records an escrow being funded
func (e EscrowEvent) IsDeposit() bool {
	return e.Action == ActionSrcEscrowCreated || e.Action == ActionDstEscrowCreated
}

// Fill is one resolver's execution of the order
type Fill struct {
	Status                   string        `json:"status"`
	TxHash                   string        `json:"txHash"`
	FilledMakerAmount        string        `json:"filledMakerAmount"`
	FilledAuctionTakerAmount string        `json:"filledAuctionTakerAmount"`
	EscrowEvents             []EscrowEvent `json:"escrowEvents"`
}

// EscrowReady reports whether the resolver has funded escrows on both chains
func (f Fill) EscrowReady() bool {
	var src, dst bool
	for _, ev := range f.EscrowEvents {
		if !ev.IsDeposit() {
			continue
		}
		switch ev.Side {
		case SideSrc:
			src = true
		case SideDst:
			dst = true
		}
	}
	return src && dst
}

// OrderStatus is a snapshot of an order returned by the status endpoint. It
// is only ever replaced wholesale by a fresh poll.
type OrderStatus struct {
	OrderHash               string       `json:"orderHash"`
	Status                  OrderState   `json:"status"`
	Validation              string       `json:"validation"`
	SrcChainID              int64        `json:"srcChainId"`
	DstChainID              int64        `json:"dstChainId"`
	Fills                   []Fill       `json:"fills"`
	RemainingMakerAmount    string       `json:"remainingMakerAmount"`
	Deadline                int64        `json:"deadline"`
	Order                   OrderMessage `json:"order"`
	Extension               string       `json:"extension"`
	CreatedAt               int64        `json:"createdAt"`
	TakerAsset              string       `json:"takerAsset"`
	SrcTokenPriceUSD        string       `json:"srcTokenPriceUsd"`
	DstTokenPriceUSD        string       `json:"dstTokenPriceUsd"`
	DstMarketAmount         string       `json:"dstMarketAmount"`
	ApproximateTakingAmount string       `json:"approximateTakingAmount"`
	AuctionStartDate        int64        `json:"auctionStartDate"`
	AuctionDuration         int64        `json:"auctionDuration"`
	InitialRateBump         int64        `json:"initialRateBump"`
	TimeLocks               string       `json:"timeLocks"`
	PositiveSurplus         string       `json:"positiveSurplus"`
	Cancelable              bool         `json:"cancelable"`
}

// Validate rejects status payloads missing required fields
func (s *OrderStatus) Validate() error {
	if s.OrderHash == "" {
		return fmt.Errorf("status: %w: orderHash", ErrMissingField)
	}
	if s.Status == "" {
		return fmt.Errorf("status: %w: status", ErrMissingField)
	}
	return nil
}

// ReadyFill is an entry of the ready-to-accept-secret-fills endpoint
type ReadyFill struct {
	Idx                   int    `json:"idx"`
	SrcEscrowDeployTxHash string `json:"srcEscrowDeployTxHash"`
	DstEscrowDeployTxHash string `json:"dstEscrowDeployTxHash"`
}

// ReadyFills lists fills whose escrows can accept a secret
type ReadyFills struct {
	Fills []ReadyFill `json:"fills"`
}
