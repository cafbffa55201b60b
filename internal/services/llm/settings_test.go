package llm_test

import (
	"context"
	"errors"
	"testing"

	"vidgo/internal/queue"
	"vidgo/internal/services/llm"
	"vidgo/internal/testsupport"
)

func TestConfigFromSettings(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	_, err := llm.ConfigFromSettings(ctx, store)
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	mustSet := func(key, value string) {
		t.Helper()
		if err := store.SettingSet(ctx, key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	mustSet(queue.SettingLLMProvider, "deepseek")
	mustSet("llm.deepseek.api_key", "sk-test")
	mustSet("llm.deepseek.base_url", "https://api.deepseek.com/v1")
	mustSet("llm.deepseek.model", "deepseek-chat")
	mustSet("llm.deepseek.thinking_model", "deepseek-reasoner")

	cfg, err := llm.ConfigFromSettings(ctx, store)
	if err != nil {
		t.Fatalf("ConfigFromSettings returned error: %v", err)
	}
	if cfg.APIKey != "sk-test" || cfg.Model != "deepseek-chat" || cfg.ThinkingModel != "deepseek-reasoner" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfigFromSettingsIncomplete(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.SettingSet(ctx, queue.SettingLLMProvider, "openai"); err != nil {
		t.Fatalf("set provider: %v", err)
	}
	if _, err := llm.ConfigFromSettings(ctx, store); !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured for missing credentials, got %v", err)
	}
}
