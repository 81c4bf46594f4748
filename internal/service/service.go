package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"liquidity-alerts/internal/alerting"
	"liquidity-alerts/internal/fetcher"
	"liquidity-alerts/internal/pool"
	"liquidity-alerts/internal/provider"
	"liquidity-alerts/internal/scheduler"
	"liquidity-alerts/internal/telemetry"
	"liquidity-alerts/internal/threshold"
)

// Outcome describes how a single pass ended.
type Outcome string

const (
	OutcomeErrorAlertSent Outcome = "error_alert_sent"
	OutcomeAlertSent      Outcome = "alert_sent"
	OutcomeNoAlert        Outcome = "no_alert"
	OutcomeSuppressed     Outcome = "suppressed"
)

// AlertSent reports whether the pass delivered a notification.
func (o Outcome) AlertSent() bool {
	return o == OutcomeAlertSent || o == OutcomeErrorAlertSent
}

// Cooldown suppresses repeats of an identical alert within a window.
type Cooldown interface {
	Active(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Options are the per-run settings fixed at startup.
type Options struct {
	ChainID         int64
	MarketName      string
	MarketSymbol    string
	MarketThreshold float64
	VaultName       string
	VaultSymbol     string
	VaultThreshold  float64
	Retry           fetcher.RetryPolicy
	Footer          string
	Now             func() time.Time
	// AfterTick, when set, observes every scheduled pass.
	AfterTick func(bucket time.Time, outcome Outcome, err error)
}

// Service orchestrates fetching, evaluation, and alerting.
type Service struct {
	opts      Options
	scheduler *scheduler.Scheduler
	markets   provider.MarketLister
	vaults    provider.VaultLister
	notifier  alerting.Notifier
	cooldown  Cooldown
	recorder  *telemetry.Recorder
	logger    zerolog.Logger
}

// New constructs the monitoring service. sched, cooldown and recorder may be nil.
func New(opts Options, sched *scheduler.Scheduler, markets provider.MarketLister, vaults provider.VaultLister, notifier alerting.Notifier, cooldown Cooldown, recorder *telemetry.Recorder, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		opts:      opts,
		scheduler: sched,
		markets:   markets,
		vaults:    vaults,
		notifier:  notifier,
		cooldown:  cooldown,
		recorder:  recorder,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run repeats the pipeline on every scheduler tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one full pass for a scheduler bucket.
func (s *Service) ProcessTick(ctx context.Context, bucket time.Time) error {
	outcome, err := s.RunOnce(ctx)
	if s.opts.AfterTick != nil {
		s.opts.AfterTick(bucket, outcome, err)
	}
	if err != nil {
		return err
	}
	s.logger.Debug().Time("bucket", bucket).Str("outcome", string(outcome)).Msg("tick complete")
	return nil
}

// RunOnce performs one full pass. A delivery failure is returned and ends the pass.
func (s *Service) RunOnce(ctx context.Context) (Outcome, error) {
	if s.notifier == nil {
		return "", fmt.Errorf("notifier not configured")
	}

	res := fetcher.Collect(ctx, fetcher.Sources{
		ChainID:      s.opts.ChainID,
		MarketName:   s.opts.MarketName,
		MarketSymbol: s.opts.MarketSymbol,
		VaultName:    s.opts.VaultName,
		VaultSymbol:  s.opts.VaultSymbol,
		Markets:      s.markets,
		Vaults:       s.vaults,
	}, s.opts.Retry, s.logger)
	s.observeFetch(res)

	if res.AllFailed() {
		return s.sendErrorAlert(ctx, res.Errors)
	}
	for _, fe := range res.Errors {
		s.logger.Warn().Str("source", fe.Source).Str("error", fe.Err).Msg("source unavailable, continuing with partial data")
	}

	metrics := map[string]pool.Metrics{
		s.opts.MarketName: pool.CalculateMarket(res.Market),
		s.opts.VaultName:  pool.CalculateVault(res.Vault),
	}
	thresholds := map[string]float64{
		s.opts.MarketName: s.opts.MarketThreshold,
		s.opts.VaultName:  s.opts.VaultThreshold,
	}
	decision := threshold.Evaluate(metrics, thresholds)

	reports := []alerting.SourceReport{
		s.report(s.opts.MarketName, res.Market != nil, metrics, thresholds, decision),
		s.report(s.opts.VaultName, res.Vault != nil, metrics, thresholds, decision),
	}

	if !decision.ShouldAlert {
		s.logger.Info().Msg("all sources above threshold, no alert needed")
		s.finish(OutcomeNoAlert)
		return OutcomeNoAlert, nil
	}

	key := breachKey(decision)
	if s.suppressed(ctx, key) {
		s.logger.Info().Str("key", key).Msg("breach alert suppressed by cooldown")
		s.recorder.ObserveAlert("breach", "suppressed")
		s.finish(OutcomeSuppressed)
		return OutcomeSuppressed, nil
	}

	embed := alerting.ComposeDataAlert(alerting.DataAlertInput{
		Reports: reports,
		Footer:  s.opts.Footer,
		At:      s.opts.Now(),
	})
	if err := s.notifier.Send(ctx, embed); err != nil {
		s.recorder.ObserveAlert("breach", "failed")
		return "", fmt.Errorf("send breach alert: %w", err)
	}
	s.recorder.ObserveAlert("breach", "sent")
	s.markSent(ctx, key)

	s.logger.Info().Str("key", key).Msg("breach alert sent")
	s.finish(OutcomeAlertSent)
	return OutcomeAlertSent, nil
}

func (s *Service) sendErrorAlert(ctx context.Context, errs []fetcher.FetchError) (Outcome, error) {
	s.logger.Error().Int("sources", len(errs)).Msg("every source failed, sending data unavailable alert")

	key := "error"
	if s.suppressed(ctx, key) {
		s.recorder.ObserveAlert("error", "suppressed")
		s.finish(OutcomeSuppressed)
		return OutcomeSuppressed, nil
	}

	embed := alerting.ComposeErrorAlert(errs, s.opts.Retry.Attempts(), s.opts.Footer, s.opts.Now())
	if err := s.notifier.Send(ctx, embed); err != nil {
		s.recorder.ObserveAlert("error", "failed")
		return "", fmt.Errorf("send error alert: %w", err)
	}
	s.recorder.ObserveAlert("error", "sent")
	s.markSent(ctx, key)
	s.finish(OutcomeErrorAlertSent)
	return OutcomeErrorAlertSent, nil
}

func (s *Service) report(name string, present bool, metrics map[string]pool.Metrics, thresholds map[string]float64, decision threshold.Decision) alerting.SourceReport {
	m := metrics[name]
	floor := thresholds[name]
	breached := decision.Breaches[name]

	s.logger.Info().
		Str("source", name).
		Bool("present", present).
		Float64("available_usd", m.AvailableLiquidity).
		Float64("threshold_usd", floor).
		Bool("breach", breached).
		Msg("liquidity compared")
	s.recorder.ObservePool(name, m, floor, breached)

	return alerting.SourceReport{
		Name:      name,
		Present:   present,
		Metrics:   m,
		Threshold: floor,
		Breach:    breached,
	}
}

func (s *Service) observeFetch(res fetcher.Result) {
	failed := make(map[string]bool, len(res.Errors))
	for _, fe := range res.Errors {
		failed[fe.Source] = true
	}
	for name, present := range map[string]bool{
		s.opts.MarketName: res.Market != nil,
		s.opts.VaultName:  res.Vault != nil,
	} {
		switch {
		case failed[name]:
			s.recorder.ObserveFetch(name, "failed")
		case present:
			s.recorder.ObserveFetch(name, "ok")
		default:
			s.recorder.ObserveFetch(name, "not_found")
		}
	}
}

// suppressed fails open: a cooldown store error never blocks an alert.
func (s *Service) suppressed(ctx context.Context, key string) bool {
	if s.cooldown == nil {
		return false
	}
	active, err := s.cooldown.Active(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cooldown lookup failed")
		return false
	}
	return active
}

func (s *Service) markSent(ctx context.Context, key string) {
	if s.cooldown == nil {
		return
	}
	if err := s.cooldown.Mark(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to record cooldown")
	}
}

func (s *Service) finish(outcome Outcome) {
	s.recorder.ObserveRun(string(outcome))
}

// breachKey identifies an alert by the set of breached sources.
func breachKey(d threshold.Decision) string {
	names := make([]string, 0, len(d.Breaches))
	for name, breached := range d.Breaches {
		if breached {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return "breach:" + strings.Join(names, ",")
}
