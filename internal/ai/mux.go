package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

// Mux routes each call to the client registered for params.Provider,
// falling back to a default provider when none is given. It satisfies
// Client itself so the generation core stays provider-agnostic.
type Mux struct {
	clients         map[string]Client
	defaultProvider string
}

// NewMux builds a provider mux. defaultProvider must name a registered
// client once Register has been called for it.
func NewMux(defaultProvider string) *Mux {
	return &Mux{
		clients:         make(map[string]Client),
		defaultProvider: defaultProvider,
	}
}

// Register adds or replaces the client for a provider name.
func (m *Mux) Register(provider string, client Client) {
	m.clients[provider] = client
}

func (m *Mux) resolve(provider string) (Client, error) {
	if provider == "" {
		provider = m.defaultProvider
	}
	client, ok := m.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return client, nil
}

func (m *Mux) Generate(ctx context.Context, prompt string, params GenerationParams) (string, UsageInfo, error) {
	client, err := m.resolve(params.Provider)
	if err != nil {
		return "", UsageInfo{}, err
	}
	return client.Generate(ctx, prompt, params)
}

func (m *Mux) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, params GenerationParams) (json.RawMessage, UsageInfo, error) {
	client, err := m.resolve(params.Provider)
	if err != nil {
		return nil, UsageInfo{}, err
	}
	return client.GenerateStructured(ctx, prompt, schema, params)
}
