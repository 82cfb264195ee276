// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with handlers.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/intake"
	"github.com/rowanlight/dramatis/internal/llm"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/runs"
	"github.com/rowanlight/dramatis/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config    *config.Manager
	Settings  *config.Store
	Store     store.Store
	Registry  *runs.Registry
	Publisher notify.Publisher
	Analyzer  *llm.Analyzer
	Launcher  *intake.Launcher
	Logger    *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// SettingsFrom extracts the settings store from context.
func SettingsFrom(ctx context.Context) *config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Settings
	}
	return nil
}

// StoreFrom extracts the character store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// RegistryFrom extracts the run registry from context.
func RegistryFrom(ctx context.Context) *runs.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// PublisherFrom extracts the event publisher from context.
func PublisherFrom(ctx context.Context) notify.Publisher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Publisher
	}
	return nil
}

// AnalyzerFrom extracts the LLM analyzer from context.
func AnalyzerFrom(ctx context.Context) *llm.Analyzer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Analyzer
	}
	return nil
}

// LauncherFrom extracts the run launcher from context.
func LauncherFrom(ctx context.Context) *intake.Launcher {
	if s := ServicesFrom(ctx); s != nil {
		return s.Launcher
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
