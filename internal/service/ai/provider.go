// Package ai adapts hosted generation services to per-session fragment streams.
package ai

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/stream"
)

// Session is the generation context of one counseling conversation. It is
// created when a topic is selected and dropped when the conversation resets.
// Callers must not run SendMessageStream concurrently on one session.
type Session interface {
	SendMessageStream(ctx context.Context, text string) (stream.Sequence, error)
}

// Provider opens sessions against one generation backend.
type Provider interface {
	Name() string
	NewSession(ctx context.Context, t topic.Topic) (Session, error)
	Close() error
}

// NewProvider builds the provider selected by cfg.
func NewProvider(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (Provider, error) {
	name := cfg.ResolveProvider()
	logger = logger.With().Str("component", "ai").Str("provider", name).Logger()

	var (
		p   Provider
		err error
	)
	switch name {
	case config.ProviderArk:
		p, err = asProvider(NewArkProvider(ctx, cfg, logger))
	case config.ProviderGemini:
		p, err = asProvider(NewGeminiProvider(ctx, cfg, logger))
	case config.ProviderOpenAI:
		p, err = asProvider(NewOpenAIProvider(cfg, logger))
	case config.ProviderScripted:
		p = NewScriptedProvider(cfg.Scripted.FragmentDelay, cfg.HistoryLimit, logger)
	default:
		err = errors.Errorf("unknown provider %q", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "init %s provider", name)
	}
	return p, nil
}

// asProvider keeps a typed nil from turning into a non-nil interface.
func asProvider[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
