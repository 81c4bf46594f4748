package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"liquidity-alerts/internal/alerting"
	"liquidity-alerts/internal/config"
	"liquidity-alerts/internal/dedup"
	"liquidity-alerts/internal/fetcher"
	"liquidity-alerts/internal/provider"
	"liquidity-alerts/internal/scheduler"
	"liquidity-alerts/internal/server"
	"liquidity-alerts/internal/service"
	"liquidity-alerts/internal/telemetry"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newProviders() (provider.MarketLister, provider.VaultLister) {
	markets := provider.NewOnChainMarkets(provider.OnChainOptions{
		RPCURLs: a.Config.Chain.RPCURLs,
		Markets: a.Config.Market.Addresses,
		Oracle:  a.Config.Market.OracleAddress,
		Timeout: a.Config.Chain.RequestTimeout,
	}, a.Logger)

	vaults := provider.NewMorphoVaults(provider.MorphoOptions{
		APIURL:    a.Config.Vault.APIURL,
		Timeout:   a.Config.Vault.RequestTimeout,
		UserAgent: a.Config.App.Name,
	}, a.Logger)

	return markets, vaults
}

func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	return alerting.NewWebhookNotifier(cfg.WebhookURL, cfg.Username, cfg.Timeout, a.Logger)
}

// newCooldown returns nil when no cooldown is configured.
func (a *App) newCooldown() (service.Cooldown, func(), error) {
	if a.Config.Alerting.Cooldown <= 0 || a.Config.Redis.URL == "" {
		return nil, func() {}, nil
	}
	cd, err := dedup.New(a.Config.Redis.URL, a.Config.Redis.Password, a.Config.Alerting.Cooldown)
	if err != nil {
		return nil, nil, err
	}
	return cd, func() { _ = cd.Close() }, nil
}

func (a *App) serviceOptions() service.Options {
	return service.Options{
		ChainID:         a.Config.Chain.ChainID,
		MarketName:      a.Config.Market.Name,
		MarketSymbol:    a.Config.Market.Symbol,
		MarketThreshold: a.Config.Market.ThresholdUSD,
		VaultName:       a.Config.Vault.Name,
		VaultSymbol:     a.Config.Vault.Symbol,
		VaultThreshold:  a.Config.Vault.ThresholdUSD,
		Retry: fetcher.RetryPolicy{
			MaxAttempts: a.Config.Retry.MaxAttempts,
			Delay:       a.Config.Retry.Delay,
		},
		Footer: a.Config.Alerting.FooterText,
	}
}

// RunOnce executes a single pipeline pass and pushes its metrics if a
// Pushgateway is configured.
func (a *App) RunOnce(ctx context.Context) (service.Outcome, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cooldown, closeCooldown, err := a.newCooldown()
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unavailable; cooldown disabled for this run")
		cooldown, closeCooldown = nil, func() {}
	}
	defer closeCooldown()

	recorder := telemetry.NewRecorder()
	markets, vaults := a.newProviders()
	svc := service.New(a.serviceOptions(), nil, markets, vaults, a.newNotifier(), cooldown, recorder, a.Logger)

	outcome, runErr := svc.RunOnce(ctx)
	if runErr != nil {
		a.Logger.Error().Err(runErr).Msg("run failed")
	} else {
		a.Logger.Info().Str("outcome", string(outcome)).Msg("run complete")
	}

	if url := a.Config.Metrics.PushgatewayURL; url != "" {
		pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pushCancel()
		if err := recorder.Push(pushCtx, url, a.Config.Metrics.Job); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to push metrics")
		}
	}

	return outcome, runErr
}

// Watch runs the pipeline on every scheduler tick, serving /healthz and
// /metrics when a listen address is configured.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cooldown, closeCooldown, err := a.newCooldown()
	if err != nil {
		return err
	}
	defer closeCooldown()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	recorder := telemetry.NewRecorder()
	health := &server.Health{}
	opts := a.serviceOptions()
	opts.AfterTick = func(_ time.Time, _ service.Outcome, err error) {
		health.Record(time.Now(), err)
	}
	markets, vaults := a.newProviders()
	svc := service.New(opts, sched, markets, vaults, a.newNotifier(), cooldown, recorder, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.Config.Metrics.ListenAddr; addr != "" {
		handler := server.New(recorder.Registry(), health, a.Logger)
		g.Go(func() error {
			if err := server.Serve(gctx, addr, handler, a.Logger); err != nil {
				a.Logger.Error().Err(err).Str("addr", addr).Msg("http server failed")
				return fmt.Errorf("serve %s: %w", addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting liquidity watch")
		return svc.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("liquidity watch stopped")
	return nil
}
