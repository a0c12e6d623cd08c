// Package app wires configuration into the estimator's components. Both
// binaries build through here so they share one set of defaults.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/export"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm/gemini"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm/openai"
	"github.com/joseph-ayodele/cbam-tracker/internal/pipeline"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
	"github.com/joseph-ayodele/cbam-tracker/internal/repository"
	"github.com/joseph-ayodele/cbam-tracker/internal/resolver"
	"github.com/joseph-ayodele/cbam-tracker/internal/session"
	"github.com/joseph-ayodele/cbam-tracker/internal/source"
	"github.com/joseph-ayodele/cbam-tracker/internal/users"
)

// App holds the built components. Fields the caller did not ask for are nil.
type App struct {
	Config   *common.Config
	Tables   pipeline.TableSource
	Analyzer *pipeline.Analyzer
	Reports  *export.Service
	Users    *users.Directory
	Sessions *session.Store
	History  repository.HistoryRepository
	logger   *slog.Logger
}

// Options selects the optional parts.
type Options struct {
	Extractor bool // build the vision backend; required for image analysis
	Users     bool // load the credential table and a session store
	History   bool // open the history store when a DSN is configured
}

// Build constructs the components cfg describes.
func Build(ctx context.Context, cfg *common.Config, opts Options, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Reports: export.NewService(logger), History: repository.Noop{}, logger: logger}

	tables, err := NewTables(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Tables = tables

	res, err := NewResolver(cfg.Sources.RulesFile, logger)
	if err != nil {
		return nil, err
	}

	var extract *pipeline.ExtractStage
	if opts.Extractor {
		ex, err := NewExtractor(cfg.LLM, logger)
		if err != nil {
			return nil, err
		}
		extract = pipeline.NewExtractStage(ex, cfg.LLM.MaxImageMB, logger)
	}
	a.Analyzer = pipeline.NewAnalyzer(logger, tables, extract, pipeline.NewPriceStage(res, logger))

	if opts.Users {
		src, err := source.New(cfg.Sources.UserTable, cfg.Sources.FetchTimeout, logger)
		if err != nil {
			return nil, common.NewAppError("CONFIG_ERROR", "sources.user_table", err)
		}
		a.Users = users.NewDirectory(src, cfg.Sources.UserTTL, nil, logger)
		a.Sessions = session.NewStore(cfg.Server.SessionTTL, logger)
	}

	if opts.History {
		repo, err := repository.Open(ctx, repository.ConfigFrom(cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		a.History = repo
	}
	return a, nil
}

// Close releases the history store.
func (a *App) Close() {
	if a.History == nil {
		return
	}
	if err := a.History.Close(); err != nil {
		a.logger.Warn("history close failed", "error", err)
	}
}

// NewTables returns a cached provider over the configured reference table,
// or the built-in fallback table when none is configured.
func NewTables(cfg *common.Config, logger *slog.Logger) (pipeline.TableSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Sources.ReferenceTable) == "" {
		logger.Warn("no reference table configured; using built-in fallback table")
		return reftable.Static{T: reftable.Fallback()}, nil
	}
	src, err := source.New(cfg.Sources.ReferenceTable, cfg.Sources.FetchTimeout, logger)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "sources.reference_table", err)
	}
	loader := reftable.NewLoader(src, reftable.Options{
		CarbonPrice:         cfg.Tax.CarbonPrice,
		DefaultExchangeRate: cfg.Tax.DefaultExchangeRate,
	}, logger)
	return reftable.NewProvider(loader, cfg.Sources.ReferenceTTL, nil, logger), nil
}

// NewResolver loads extra keyword rules from path when set.
func NewResolver(path string, logger *slog.Logger) (*resolver.Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(path) == "" {
		return resolver.New(nil, logger), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "open rules file", err)
	}
	defer func() { _ = f.Close() }()
	rules, err := resolver.LoadRules(f)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "load rules file", err)
	}
	logger.Info("resolver rules loaded", "path", path, "rules", len(rules))
	return resolver.New(rules, logger), nil
}

// NewExtractor picks the vision backend named by cfg.Provider.
func NewExtractor(cfg common.LLMConfig, logger *slog.Logger) (llm.ItemExtractor, error) {
	switch llm.NormalizeProvider(cfg.Provider) {
	case llm.ProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case llm.ProviderGemini:
		model := cfg.Model
		// the shared default names an OpenAI model
		if strings.HasPrefix(strings.ToLower(model), "gpt") {
			model = ""
		}
		return gemini.NewClient(gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown llm.provider %q", cfg.Provider), common.ErrInvalidInput)
	}
}
