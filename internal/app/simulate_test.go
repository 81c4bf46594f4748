package app

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"liquidity-alerts/internal/config"
	"liquidity-alerts/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		Market:   config.MarketConfig{Name: "USDC Market", Symbol: "USDC", ThresholdUSD: 4_000_000},
		Vault:    config.VaultConfig{Name: "USDC Vault", Symbol: "mwUSDC", ThresholdUSD: 29_000_000},
		Retry:    config.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond},
		Alerting: config.AlertingConfig{WebhookURL: "http://127.0.0.1:0/unused", FooterText: "liquidity-alerts"},
	}
}

func TestSimulateAlertDryRunBreach(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())
	var out bytes.Buffer

	outcome, err := a.SimulateAlert(context.Background(), SimulateOptions{
		MarketLiquidity: 5_000_000,
		VaultLiquidity:  1_000_000,
		DryRun:          true,
		Out:             &out,
	})
	if err != nil {
		t.Fatalf("SimulateAlert: %v", err)
	}
	if outcome != service.OutcomeAlertSent {
		t.Fatalf("outcome = %s", outcome)
	}

	var payload struct {
		Embeds []struct {
			Title string `json:"title"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("dry run 输出不是合法 JSON: %v\n%s", err, out.String())
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(payload.Embeds))
	}
}

func TestSimulateAlertDryRunHealthy(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())
	var out bytes.Buffer

	outcome, err := a.SimulateAlert(context.Background(), SimulateOptions{
		MarketLiquidity: 5_000_000,
		VaultLiquidity:  30_000_000,
		DryRun:          true,
		Out:             &out,
	})
	if err != nil {
		t.Fatalf("SimulateAlert: %v", err)
	}
	if outcome != service.OutcomeNoAlert {
		t.Fatalf("outcome = %s", outcome)
	}
	if out.Len() != 0 {
		t.Fatalf("健康状态不应输出告警: %s", out.String())
	}
}

func TestSimulateAlertRejectsNegative(t *testing.T) {
	a := NewApp(testConfig(), zerolog.Nop())
	if _, err := a.SimulateAlert(context.Background(), SimulateOptions{MarketLiquidity: -1, DryRun: true, Out: &bytes.Buffer{}}); err == nil {
		t.Fatal("负数输入应返回错误")
	}
}
