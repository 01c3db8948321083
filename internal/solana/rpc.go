package solana

import "context"

// RPCClient defines the Solana RPC HTTP surface the bot depends on.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction by signature,
	// including pre/post token balances. Returns nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetTokenLargestAccounts retrieves the 20 largest token accounts
	// for a mint.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenAccountOwner resolves a token account to its owner wallet.
	// Returns empty string if the account does not exist or is not a
	// token account.
	GetTokenAccountOwner(ctx context.Context, account string) (string, error)

	// SendTransaction submits a signed, base64-encoded transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, txBase64 string) (string, error)

	// ConfirmTransaction polls signature status until the transaction
	// is confirmed or the context expires.
	ConfirmTransaction(ctx context.Context, signature string) (bool, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Failed reports whether the transaction errored on chain.
func (m *TransactionMeta) Failed() bool {
	return m != nil && m.Err != nil
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is a token account balance snapshot from transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	UIAmount     float64
	Decimals     int
}

// TokenAccountBalance is one entry from getTokenLargestAccounts.
type TokenAccountBalance struct {
	Address  string
	UIAmount float64
	Amount   string // raw amount as decimal string
	Decimals int
}
