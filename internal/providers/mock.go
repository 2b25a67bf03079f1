package providers

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"
)

// MockProvider returns the window's own sentences as a JSON array so local
// runs produce deterministic fragments without an API key.
type MockProvider struct {
	maxFragments int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{maxFragments: 15}
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	sentences := splitSentences(req.Prompt)
	if len(sentences) > m.maxFragments {
		sentences = sentences[:m.maxFragments]
	}
	out, _ := json.Marshal(sentences)
	return GenerateResponse{Text: string(out)}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

// DisabledProvider is used when generation is turned off. It answers with
// empty output, which the scheduler treats as a skip.
type DisabledProvider struct{}

func (DisabledProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	_ = req
	return GenerateResponse{}, ProviderInfo{Name: "disabled", Model: "none", Key: "disabled"}, nil
}

func splitSentences(text string) []string {
	out := make([]string, 0)
	var b strings.Builder
	flush := func() {
		s := strings.Join(strings.Fields(b.String()), " ")
		b.Reset()
		if len([]rune(s)) >= 3 && strings.IndexFunc(s, unicode.IsLetter) >= 0 {
			out = append(out, s)
		}
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return out
}
