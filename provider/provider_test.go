package provider

import (
	"testing"

	"github.com/mohammad-safakhou/pdfbot/config"
)

func TestNewSelectsByType(t *testing.T) {
	for _, typ := range []string{"openai", "gemini"} {
		p, err := New(config.LLMConfig{Type: typ, Model: "m"})
		if err != nil || p == nil {
			t.Fatalf("New(%s): %v", typ, err)
		}
	}
	if _, err := New(config.LLMConfig{Type: "anthropic", Model: "m"}); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}
