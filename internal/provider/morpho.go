package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const vaultsQuery = `query Vaults($chainId: Int!) {
  vaults(first: 200, where: { chainId_in: [$chainId] }) {
    items {
      address
      symbol
      state {
        totalAssetsUsd
        apy
        netApy
        allocation {
          supplyAssetsUsd
          market {
            uniqueKey
            state {
              supplyApy
              liquidityAssetsUsd
            }
          }
        }
      }
    }
  }
}`

// MorphoOptions parameterise the vault API client.
type MorphoOptions struct {
	APIURL    string
	Timeout   time.Duration
	UserAgent string
}

// MorphoVaults lists vaults from the Morpho GraphQL API.
type MorphoVaults struct {
	opts   MorphoOptions
	logger zerolog.Logger
	client *http.Client
	apiURL string
}

// NewMorphoVaults constructs a vault lister.
func NewMorphoVaults(opts MorphoOptions, logger zerolog.Logger) *MorphoVaults {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://blue-api.morpho.org/graphql"
	}

	return &MorphoVaults{
		opts:   opts,
		logger: logger.With().Str("component", "morpho_vaults").Logger(),
		client: &http.Client{Timeout: timeout},
		apiURL: apiURL,
	}
}

// ListVaults fetches vault state for the chain and maps it to Vault records.
func (m *MorphoVaults) ListVaults(ctx context.Context, chainID int64) ([]Vault, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     vaultsQuery,
		Variables: map[string]any{"chainId": chainID},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "liquidity-alerts/1.0")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res vaultsResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode vaults response: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("vault api error: %s", res.Errors[0].Message)
	}

	vaults := make([]Vault, 0, len(res.Data.Vaults.Items))
	for _, item := range res.Data.Vaults.Items {
		vaults = append(vaults, item.toVault())
	}

	m.logger.Debug().Int64("chain_id", chainID).Int("vaults", len(vaults)).Msg("vaults listed")
	return vaults, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type vaultsResponse struct {
	Data struct {
		Vaults struct {
			Items []vaultItem `json:"items"`
		} `json:"vaults"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type vaultItem struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	State   *struct {
		TotalAssetsUSD *float64 `json:"totalAssetsUsd"`
		APY            *float64 `json:"apy"`
		NetAPY         *float64 `json:"netApy"`
		Allocation     []struct {
			SupplyAssetsUSD *float64 `json:"supplyAssetsUsd"`
			Market          struct {
				UniqueKey string `json:"uniqueKey"`
				State     *struct {
					SupplyAPY          *float64 `json:"supplyApy"`
					LiquidityAssetsUSD *float64 `json:"liquidityAssetsUsd"`
				} `json:"state"`
			} `json:"market"`
		} `json:"allocation"`
	} `json:"state"`
}

// toVault converts API fractions to percent and derives allocation weights
// from each allocation's share of total assets.
func (v vaultItem) toVault() Vault {
	vault := Vault{Symbol: v.Symbol, Address: v.Address}
	if v.State == nil {
		return vault
	}

	vault.TotalLiquidityUSD = v.State.TotalAssetsUSD
	vault.TotalAPY = percent(v.State.NetAPY)
	vault.BaseAPY = percent(v.State.APY)

	total := 0.0
	if v.State.TotalAssetsUSD != nil {
		total = *v.State.TotalAssetsUSD
	}

	for _, a := range v.State.Allocation {
		supplied := deref(a.SupplyAssetsUSD)
		if supplied <= 0 {
			continue
		}

		alloc := Allocation{Market: a.Market.UniqueKey, SuppliedUSD: supplied}
		if total > 0 {
			alloc.Weight = supplied / total
		}
		if a.Market.State != nil {
			alloc.APY = deref(a.Market.State.SupplyAPY) * 100
			alloc.LiquidityUSD = deref(a.Market.State.LiquidityAssetsUSD)
		}
		vault.Allocations = append(vault.Allocations, alloc)
	}
	return vault
}

func percent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v * 100)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

type errorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Message != "" {
			return fmt.Errorf("vault api error (%d): %s", status, apiErr.Errors[0].Message)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("vault api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("vault api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("vault api error (%d)", status)
}

var _ VaultLister = (*MorphoVaults)(nil)
