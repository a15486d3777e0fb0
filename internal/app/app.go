// Package app wires the configured provider, tools, flows, history and router
// together for the entry points.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/raine/itemcheck/config"
	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/llm"
	"github.com/raine/itemcheck/internal/router"
	"github.com/raine/itemcheck/internal/search"
	"github.com/raine/itemcheck/internal/storage"
	"github.com/rs/zerolog/log"
)

// StoreCloser is a history store holding a database connection.
type StoreCloser interface {
	history.Store
	io.Closer
}

type App struct {
	Provider llm.Provider
	Flows    *flows.Service
	Store    StoreCloser
	Recorder *history.Recorder
	Router   *router.Router
}

// New builds the application from cfg. Call Close when done; Run the
// Recorder for history to be saved.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", provider.Name()).Str("model", cfg.Model).Msg("model provider initialized")

	service, err := flows.NewService(provider, NewToolset(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize flows: %w", err)
	}

	store, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	recorder := history.NewRecorder(store, history.DefaultBuffer)
	return &App{
		Provider: provider,
		Flows:    service,
		Store:    store,
		Recorder: recorder,
		Router: router.New(service,
			router.WithRecorder(recorder),
			router.WithLengthThreshold(cfg.IntentLengthThreshold),
		),
	}, nil
}

// Close flushes pending history and closes the store.
func (a *App) Close() error {
	a.Recorder.Close()
	return a.Store.Close()
}

func NewProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	models := llm.Models{Standard: cfg.Model, Lite: cfg.LiteModel}
	switch cfg.Provider {
	case config.ProviderGemini:
		p, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, models)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini: %w", err)
		}
		return p, nil
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(cfg.AnthropicAPIKey, models), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, models), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewToolset uses the live eBay Finding API when an app id is configured and
// the mocks for everything else.
func NewToolset(cfg *config.Config) flows.Toolset {
	tools := flows.MockToolset()
	if cfg.EbayAppID != "" {
		tools.Ebay = search.NewEbayFinding(search.EbayOpts{
			AppID:         cfg.EbayAppID,
			RatePerSecond: cfg.EbayRatePerSec,
		})
		log.Info().Msg("using eBay Finding API")
	}
	return tools
}

// NewStore opens Postgres when DATABASE_URL is set and SQLite otherwise.
func NewStore(ctx context.Context, cfg *config.Config) (StoreCloser, error) {
	if cfg.DatabaseURL != "" {
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history store: %w", err)
		}
		log.Info().Msg("history store initialized (postgres)")
		return store, nil
	}
	store, err := storage.NewSQLiteStore(cfg.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}
	log.Info().Str("dbPath", cfg.HistoryDBPath).Msg("history store initialized (sqlite)")
	return store, nil
}
