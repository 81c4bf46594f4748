package fetcher

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"liquidity-alerts/internal/provider"
)

// Sources describes the two monitored upstream records.
type Sources struct {
	ChainID      int64
	MarketName   string
	MarketSymbol string
	VaultName    string
	VaultSymbol  string
	Markets      provider.MarketLister
	Vaults       provider.VaultLister
}

// Result is the combined outcome of both fetches. A nil snapshot means the
// source failed or had no matching record.
type Result struct {
	Market *provider.Market
	Vault  *provider.Vault
	Errors []FetchError
}

// AllFailed reports whether every source errored and no snapshot is available.
func (r Result) AllFailed() bool {
	return len(r.Errors) > 0 && r.Market == nil && r.Vault == nil
}

// Collect fetches the market and vault concurrently. A failure in one source
// never aborts the other.
func Collect(ctx context.Context, src Sources, policy RetryPolicy, logger zerolog.Logger) Result {
	logger = logger.With().Str("component", "fetcher").Logger()

	var (
		wg        sync.WaitGroup
		market    *provider.Market
		vault     *provider.Vault
		marketErr error
		vaultErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		market, _, marketErr = WithRetry(ctx, src.MarketName, policy, func(ctx context.Context) (*provider.Market, bool, error) {
			markets, err := src.Markets.ListMarkets(ctx, src.ChainID)
			if err != nil {
				return nil, false, err
			}
			m := provider.SelectMarket(markets, src.MarketSymbol)
			return m, m != nil, nil
		}, logger)
	}()
	go func() {
		defer wg.Done()
		vault, _, vaultErr = WithRetry(ctx, src.VaultName, policy, func(ctx context.Context) (*provider.Vault, bool, error) {
			vaults, err := src.Vaults.ListVaults(ctx, src.ChainID)
			if err != nil {
				return nil, false, err
			}
			v := provider.SelectVault(vaults, src.VaultSymbol)
			return v, v != nil, nil
		}, logger)
	}()
	wg.Wait()

	res := Result{Market: market, Vault: vault}
	for _, err := range []error{marketErr, vaultErr} {
		var fe *FetchError
		if errors.As(err, &fe) {
			res.Errors = append(res.Errors, *fe)
		}
	}
	return res
}
