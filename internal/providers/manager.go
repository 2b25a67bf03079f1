package providers

import (
	"context"
	"fmt"
	"strings"

	"reelflow/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager owns the configured completion providers.
type Manager struct {
	llmProviders []NamedLLMProvider
	temperature  float64
	maxTokens    int
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{temperature: cfg.LLMTemperature, maxTokens: cfg.LLMMaxTokens}
	if !cfg.GenerationEnabled {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "disabled", Name: "disabled"}, Provider: DisabledProvider{}}}
		return m, nil
	}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	if len(m.llmProviders) == 0 {
		return nil, fmt.Errorf("no completion provider configured; set REELFLOW_LLM_PROVIDERS or disable REELFLOW_GENERATE_REELS")
	}
	return m, nil
}

// Complete runs one completion against the preferred provider. It never
// fails over or retries; the next supply pass is the retry.
func (m *Manager) Complete(ctx context.Context, system, prompt string) (string, ProviderInfo, error) {
	provider, ref := m.LLMProviderByIndex(m.PreferredLLMOrder()[0])
	resp, info, err := provider.Generate(ctx, GenerateRequest{
		Operation:   "reel_generate",
		System:      system,
		Prompt:      prompt,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	})
	if err != nil {
		return "", info, fmt.Errorf("llm generate via %s failed: %w", ref.Raw, err)
	}
	return resp.Text, info, nil
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if len(m.llmProviders) == 0 {
		return NewMockProvider(), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

// PreferredLLMOrder puts real providers ahead of the mock.
func (m *Manager) PreferredLLMOrder() []int {
	n := len(m.llmProviders)
	out := make([]int, 0, max(n, 1))
	for i := 0; i < n; i++ {
		if strings.ToLower(m.llmProviders[i].Ref.Name) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if strings.ToLower(m.llmProviders[i].Ref.Name) == "mock" {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		out = append(out, 0)
	}
	return out
}

func buildProvider(ref ProviderRef, model string) (LLMProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias, model), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "disabled":
		return DisabledProvider{}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
