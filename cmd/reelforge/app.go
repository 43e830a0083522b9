package main

import (
	"fmt"
	"log/slog"

	"reelforge/internal/artifacts"
	"reelforge/internal/assembly"
	"reelforge/internal/budget"
	"reelforge/internal/config"
	"reelforge/internal/narration"
	"reelforge/internal/notifications"
	"reelforge/internal/pricing"
	"reelforge/internal/production"
	"reelforge/internal/segments"
	"reelforge/internal/services/premiumtts"
	"reelforge/internal/services/videogen"
	"reelforge/internal/store"
)

// app holds the components every state-touching command shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	catalog  pricing.Catalog
	ledger   *budget.Ledger
	counters *budget.Counters
	notifier notifications.Service
}

func openApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	catalog := pricing.NewCatalog(cfg.Pricing)
	notifier := notifications.NewService(cfg)
	opts := budget.Options{
		DailyLimit:       cfg.DailyLimit(),
		MonthlyLimit:     cfg.MonthlyLimit(),
		WarningThreshold: cfg.Budget.WarningThreshold,
		AbortOnExceed:    cfg.Budget.AbortOnExceed,
		Location:         cfg.Location(),
		Logger:           logger,
		Notifier:         notifier,
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		catalog:  catalog,
		ledger:   budget.New(st, catalog, opts),
		counters: budget.NewCounters(st, opts),
		notifier: notifier,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// premiumNarration reports whether admission should price the script at
// the premium per-character rate, which holds for a premium fallback too.
func (a *app) premiumNarration() bool {
	return a.cfg.MayBillNarration()
}

// newRunner wires the production runner against the configured providers.
func (a *app) newRunner() (*production.Runner, error) {
	narrator, err := newNarrator(a.cfg, a.catalog, a.logger)
	if err != nil {
		return nil, err
	}
	artifactStore, err := artifacts.New(a.cfg)
	if err != nil {
		return nil, err
	}
	generator := &segments.Generator{
		Backend:      videogen.NewClient(videogen.ConfigFromApp(a.cfg)),
		Catalog:      a.catalog,
		Concurrency:  a.cfg.Segments.Concurrency,
		Timeout:      a.cfg.SegmentTimeout(),
		PromptSuffix: a.cfg.Segments.PromptSuffix,
		Logger:       a.logger,
	}
	return production.NewRunner(production.Deps{
		Ledger:           a.ledger,
		Counters:         a.counters,
		Jobs:             a.store,
		Strategies:       a.store,
		Narrator:         narrator,
		Segments:         generator,
		Assembler:        &assembly.Assembler{Backend: assembly.NewFFmpeg(a.cfg), Logger: a.logger},
		Artifacts:        artifactStore,
		Notifier:         a.notifier,
		StagingDir:       a.cfg.Paths.StagingDir,
		MusicDir:         a.cfg.Paths.MusicDir,
		MusicVolume:      a.cfg.Assembly.MusicVolume,
		PremiumNarration: a.premiumNarration(),
		Defaults:         production.DefaultOptions(a.cfg),
		Logger:           a.logger,
	})
}

func newNarrator(cfg *config.Config, catalog pricing.Catalog, logger *slog.Logger) (*narration.Service, error) {
	primary, err := synthesizer(cfg, catalog, cfg.Narration.Primary)
	if err != nil {
		return nil, err
	}
	svc := &narration.Service{
		Primary: primary,
		Timeout: cfg.NarrationTimeout(),
		Logger:  logger,
	}
	if cfg.Narration.Fallback != "" {
		fallback, err := synthesizer(cfg, catalog, cfg.Narration.Fallback)
		if err != nil {
			return nil, err
		}
		svc.Fallback = fallback
	}
	return svc, nil
}

func synthesizer(cfg *config.Config, catalog pricing.Catalog, provider string) (narration.Synthesizer, error) {
	switch provider {
	case config.ProviderEdge:
		return narration.EdgeCLI{Binary: cfg.Narration.EdgeBinary, FFprobeBinary: cfg.FFprobeBinary()}, nil
	case config.ProviderPremium:
		return premiumtts.NewClient(premiumtts.ConfigFromApp(cfg), catalog), nil
	default:
		return nil, fmt.Errorf("unknown narration provider %q", provider)
	}
}
