package llm

import "testing"

func TestNewClientSelectsProvider(t *testing.T) {
	c, err := NewClient(ProviderOpenAI, "sk-test")
	if err != nil {
		t.Fatalf("openai client: %v", err)
	}
	if c.Name() != "openai" {
		t.Fatalf("name = %q, want openai", c.Name())
	}

	c, err = NewClient(ProviderAnthropic, "sk-ant-test")
	if err != nil {
		t.Fatalf("anthropic client: %v", err)
	}
	if c.Name() != "anthropic" {
		t.Fatalf("name = %q, want anthropic", c.Name())
	}

	// Unknown providers fall back to Anthropic.
	c, err = NewClient(Provider("mystery"), "sk-ant-test")
	if err != nil {
		t.Fatalf("fallback client: %v", err)
	}
	if c.Name() != "anthropic" {
		t.Fatalf("name = %q, want anthropic", c.Name())
	}

	if _, err := NewClient(ProviderOpenAI, ""); err == nil {
		t.Fatal("empty API key accepted")
	}
}
