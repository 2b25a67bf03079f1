package providers

import "testing"

func TestResolveOllamaModel_Default(t *testing.T) {
	t.Setenv("REELFLOW_OLLAMA_MODEL", "")
	got := resolveOllamaModel("")
	if got != "llama3.1" {
		t.Fatalf("expected default llama3.1, got %q", got)
	}
}

func TestResolveOllamaModel_AliasOverrides(t *testing.T) {
	t.Setenv("REELFLOW_OLLAMA_MODEL_LOCAL", "mistral")
	if got := resolveOllamaModel("local"); got != "mistral" {
		t.Fatalf("expected env alias model, got %q", got)
	}
	if got := resolveOllamaModel("qwen2.5"); got != "qwen2.5" {
		t.Fatalf("expected direct model, got %q", got)
	}
}
