package domain

// Position represents a purchased token tracked through to full liquidation.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	Mint        string  // token mint address, PRIMARY KEY
	Amount      float64 // UI units held at purchase time
	Decimals    int     // token decimals
	PurchasedAt int64   // Unix timestamp in milliseconds

	// First sell: half the position, executed on the first observed
	// holder exit. TargetPrice is fixed at execution time.
	FirstSell   bool
	FirstSellAt *int64   // Unix ms, set when first sell completes
	TargetPrice *float64 // token units per SOL; higher = cheaper token

	// Second sell: remaining half, executed when the current
	// token-per-SOL ratio comes back to TargetPrice.
	SecondSell   bool
	SecondSellAt *int64 // Unix ms, set when second sell completes
}

// Open reports whether the position still holds any of the token.
func (p *Position) Open() bool {
	return !p.SecondSell
}

// HalfAmount returns the size of one exit tranche in UI units.
func (p *Position) HalfAmount() float64 {
	return p.Amount * 0.5
}
