package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	marketTokenABIJSON = `[
{"inputs":[],"name":"underlying","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getCash","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalBorrows","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"exchangeRateStored","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"supplyRatePerTimestamp","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

	erc20SymbolABIJSON = `[{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

	oracleABIJSON = `[{"inputs":[{"internalType":"address","name":"mToken","type":"address"}],"name":"getUnderlyingPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	secondsPerYear = 365 * 24 * 60 * 60
)

var (
	marketTokenABI abi.ABI
	erc20SymbolABI abi.ABI
	oracleABI      abi.ABI
)

func init() {
	marketTokenABI = mustParseABI("market token", marketTokenABIJSON)
	erc20SymbolABI = mustParseABI("erc20", erc20SymbolABIJSON)
	oracleABI = mustParseABI("oracle", oracleABIJSON)
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}

// ContractCaller is the subset of ethclient.Client used for eth_call reads.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OnChainOptions parameterise the on-chain market reader.
type OnChainOptions struct {
	RPCURLs []string
	Markets []string
	Oracle  string
	Timeout time.Duration
}

// OnChainMarkets reads Compound-style market tokens over JSON-RPC.
type OnChainMarkets struct {
	opts      OnChainOptions
	logger    zerolog.Logger
	caller    ContractCaller
	clientMux sync.Mutex
}

// NewOnChainMarkets builds a reader that dials the configured RPC endpoints lazily.
func NewOnChainMarkets(opts OnChainOptions, logger zerolog.Logger) *OnChainMarkets {
	return &OnChainMarkets{opts: opts, logger: logger.With().Str("component", "onchain_markets").Logger()}
}

// NewOnChainMarketsWithCaller builds a reader on top of an existing caller.
func NewOnChainMarketsWithCaller(opts OnChainOptions, caller ContractCaller, logger zerolog.Logger) *OnChainMarkets {
	m := NewOnChainMarkets(opts, logger)
	m.caller = caller
	return m
}

// ListMarkets reads every configured market token and prices it in USD.
func (o *OnChainMarkets) ListMarkets(ctx context.Context, chainID int64) ([]Market, error) {
	if len(o.opts.Markets) == 0 {
		return nil, errors.New("no market addresses configured")
	}
	if o.opts.Oracle == "" {
		return nil, errors.New("oracle address not configured")
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	caller, err := o.getCaller(ctx, chainID)
	if err != nil {
		return nil, err
	}

	markets := make([]Market, 0, len(o.opts.Markets))
	for _, raw := range o.opts.Markets {
		market, err := o.readMarket(ctx, caller, common.HexToAddress(raw))
		if err != nil {
			return nil, fmt.Errorf("read market %s: %w", raw, err)
		}
		markets = append(markets, market)
	}
	return markets, nil
}

func (o *OnChainMarkets) readMarket(ctx context.Context, caller ContractCaller, addr common.Address) (Market, error) {
	out, err := call(ctx, caller, marketTokenABI, addr, "underlying")
	if err != nil {
		return Market{}, err
	}
	underlying, ok := out[0].(common.Address)
	if !ok {
		return Market{}, errors.New("failed to decode underlying output")
	}

	out, err = call(ctx, caller, erc20SymbolABI, underlying, "symbol")
	if err != nil {
		return Market{}, err
	}
	symbol, ok := out[0].(string)
	if !ok {
		return Market{}, errors.New("failed to decode symbol output")
	}

	values := make(map[string]*big.Int, 5)
	for _, method := range []string{"getCash", "totalBorrows", "totalSupply", "exchangeRateStored", "supplyRatePerTimestamp"} {
		v, err := callUint(ctx, caller, marketTokenABI, addr, method)
		if err != nil {
			return Market{}, err
		}
		values[method] = v
	}

	price, err := callUint(ctx, caller, oracleABI, common.HexToAddress(o.opts.Oracle), "getUnderlyingPrice", addr)
	if err != nil {
		return Market{}, err
	}
	if price.Sign() == 0 {
		o.logger.Warn().Str("market", addr.Hex()).Msg("oracle returned zero price")
	}

	// totalSupply is denominated in market tokens; exchangeRateStored converts to underlying at 1e18 scale.
	supplied := new(big.Int).Mul(values["totalSupply"], values["exchangeRateStored"])
	supplied.Quo(supplied, big.NewInt(1_000_000_000_000_000_000))

	return Market{
		Symbol:          symbol,
		Address:         addr.Hex(),
		TotalSupplyUSD:  Float(usdValue(supplied, price)),
		TotalBorrowsUSD: Float(usdValue(values["totalBorrows"], price)),
		CashUSD:         Float(usdValue(values["getCash"], price)),
		BaseSupplyAPY:   Float(supplyAPY(values["supplyRatePerTimestamp"])),
	}, nil
}

// usdValue applies an oracle price mantissa scaled by 1e(36-decimals), so the
// token decimals cancel out.
func usdValue(amount, price *big.Int) float64 {
	return decimal.NewFromBigInt(amount, 0).
		Mul(decimal.NewFromBigInt(price, 0)).
		Shift(-36).
		InexactFloat64()
}

// supplyAPY compounds a per-second rate mantissa over a year, in percent.
func supplyAPY(ratePerSecond *big.Int) float64 {
	rate := decimal.NewFromBigInt(ratePerSecond, -18).InexactFloat64()
	return (math.Pow(1+rate, secondsPerYear) - 1) * 100
}

func call(ctx context.Context, caller ContractCaller, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	payload, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	outputs, err := contract.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}
	return outputs, nil
}

func callUint(ctx context.Context, caller ContractCaller, contract abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := call(ctx, caller, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s output", method)
	}
	return v, nil
}

func (o *OnChainMarkets) getCaller(ctx context.Context, chainID int64) (ContractCaller, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.caller != nil {
		return o.caller, nil
	}
	if len(o.opts.RPCURLs) == 0 {
		return nil, errors.New("rpc url not configured")
	}

	var lastErr error
	for _, url := range o.opts.RPCURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			o.logger.Warn().Err(err).Str("rpc", url).Msg("dial rpc failed")
			continue
		}

		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			lastErr = err
			o.logger.Warn().Err(err).Str("rpc", url).Msg("rpc chain id lookup failed")
			continue
		}
		if chainID != 0 && id.Int64() != chainID {
			client.Close()
			lastErr = fmt.Errorf("rpc %s serves chain %d, want %d", url, id.Int64(), chainID)
			continue
		}

		o.caller = client
		return client, nil
	}
	return nil, fmt.Errorf("no usable rpc endpoint: %w", lastErr)
}

var _ MarketLister = (*OnChainMarkets)(nil)
