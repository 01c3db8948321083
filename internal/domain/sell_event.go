package domain

// SellEvent is a holder balance decrease observed in a confirmed
// transaction for a watched mint. One transaction may yield several
// events, one per (mint, holder) whose balance strictly decreased.
type SellEvent struct {
	Mint      string
	Owner     string  // holder whose balance decreased
	Amount    float64 // pre - post, UI units
	Signature string  // transaction that contained the decrease
	Slot      int64
}
