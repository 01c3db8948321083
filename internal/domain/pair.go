package domain

// PairInfo describes a newly listed SOL trading pair from the pool feed.
type PairInfo struct {
	PoolID    string // dedup key, transient per process lifetime
	Mint      string // the non-SOL side of the pair
	Symbol    string
	Decimals  int
	Liquidity float64 // pool TVL in USD as reported by the feed
	Volume24h float64
	OpenTime  int64 // Unix seconds, 0 if unknown
}

// Holder is one of a token's largest accounts resolved to its owner.
type Holder struct {
	Rank         int
	TokenAccount string // token account address
	Owner        string // wallet that owns the token account
	Amount       float64
}
