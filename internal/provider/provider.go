package provider

import "context"

// Market is a raw lending-market record. Nil numeric fields were not reported upstream.
type Market struct {
	Symbol          string
	Address         string
	TotalSupplyUSD  *float64
	TotalBorrowsUSD *float64
	CashUSD         *float64
	SupplyAPY       *float64
	BaseSupplyAPY   *float64
}

// Allocation is a vault's deployment into one underlying market.
type Allocation struct {
	Market       string
	Weight       float64
	APY          float64
	SuppliedUSD  float64
	LiquidityUSD float64
}

// Vault is a raw yield-vault record.
type Vault struct {
	Symbol            string
	Address           string
	TotalLiquidityUSD *float64
	Allocations       []Allocation
	TotalAPY          *float64
	BaseAPY           *float64
}

// MarketLister lists the lending markets deployed on a chain.
type MarketLister interface {
	ListMarkets(ctx context.Context, chainID int64) ([]Market, error)
}

// VaultLister lists the vaults deployed on a chain.
type VaultLister interface {
	ListVaults(ctx context.Context, chainID int64) ([]Vault, error)
}

// SelectMarket returns the first market whose symbol matches exactly, or nil.
func SelectMarket(markets []Market, symbol string) *Market {
	for i := range markets {
		if markets[i].Symbol == symbol {
			m := markets[i]
			return &m
		}
	}
	return nil
}

// SelectVault returns the first vault whose symbol matches exactly, or nil.
func SelectVault(vaults []Vault, symbol string) *Vault {
	for i := range vaults {
		if vaults[i].Symbol == symbol {
			v := vaults[i]
			return &v
		}
	}
	return nil
}

// Float wraps v for the optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
