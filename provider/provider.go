package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/mohammad-safakhou/pdfbot/models"
	openai_provider "github.com/mohammad-safakhou/pdfbot/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI Client = "openai"
	Gemini Client = "gemini"
)

// Provider is the interface that all LLM implementations must satisfy.
// Implementations do not retry.
type Provider interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
}

// New creates a language model client from configuration. Gemini is reached
// through its OpenAI-compatible endpoint, so both clients share one
// implementation and differ only in base URL.
func New(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Type) {
	case OpenAI, Gemini:
		return openai_provider.NewClient(openai_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Type)
	}
}
