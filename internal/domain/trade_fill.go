package domain

// TradeFill is an archived trade-cycle record: an observed sell trigger
// or an executed swap. Written to the trade_log analytics store, never
// read on the hot path.
type TradeFill struct {
	Mint          string
	Side          FillSide
	Amount        float64 // token UI units
	QuoteLamports int64   // lamports received (sells) or spent (buys), 0 for triggers
	Signature     string  // our swap signature, or the trigger transaction
	ObservedAt    int64   // Unix ms
}

// FillSide identifies the step of the buy-then-exit cycle.
type FillSide string

const (
	FillSideBuy     FillSide = "BUY"
	FillSideTrigger FillSide = "TRIGGER" // observed holder exit, no trade of ours
	FillSideSell1   FillSide = "SELL1"   // first half
	FillSideSell2   FillSide = "SELL2"   // remaining half
)
