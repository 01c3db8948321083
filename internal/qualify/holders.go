package qualify

import (
	"context"
	"fmt"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/solana"
)

// TopHolderCount is how many of the largest accounts are inspected.
const TopHolderCount = 10

// HolderInspector resolves a mint's largest token accounts to their
// owner wallets.
type HolderInspector struct {
	rpc solana.RPCClient
}

// NewHolderInspector creates an inspector.
func NewHolderInspector(rpc solana.RPCClient) *HolderInspector {
	return &HolderInspector{rpc: rpc}
}

// TopHolders returns up to limit of the mint's largest holders, ranked
// by balance. Token accounts that cannot be resolved to an owner keep
// an empty Owner rather than failing the whole lookup.
func (h *HolderInspector) TopHolders(ctx context.Context, mint string, limit int) ([]domain.Holder, error) {
	accounts, err := h.rpc.GetTokenLargestAccounts(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("largest accounts for %s: %w", mint, err)
	}
	if len(accounts) > limit {
		accounts = accounts[:limit]
	}

	holders := make([]domain.Holder, 0, len(accounts))
	for i, acc := range accounts {
		owner, err := h.rpc.GetTokenAccountOwner(ctx, acc.Address)
		if err != nil {
			owner = ""
		}
		holders = append(holders, domain.Holder{
			Rank:         i + 1,
			TokenAccount: acc.Address,
			Owner:        owner,
			Amount:       acc.UIAmount,
		})
	}
	return holders, nil
}

// HolderReport is a holder annotated with its domain names, served by
// the control surface for manual inspection.
type HolderReport struct {
	domain.Holder
	Domains []string `json:"domains"`
}

// InspectHolders returns the mint's top holders with their domains.
func (h *HolderInspector) InspectHolders(ctx context.Context, mint string, sns *SNSClient) ([]HolderReport, error) {
	holders, err := h.TopHolders(ctx, mint, TopHolderCount)
	if err != nil {
		return nil, err
	}

	reports := make([]HolderReport, 0, len(holders))
	for _, holder := range holders {
		report := HolderReport{Holder: holder}
		if holder.Owner != "" {
			if domains, err := sns.Domains(ctx, holder.Owner); err == nil {
				report.Domains = domains
			}
		}
		reports = append(reports, report)
	}
	return reports, nil
}
