package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"vidgo/internal/queue"
)

// ErrNotConfigured indicates no LLM provider has been set up in settings.
var ErrNotConfigured = errors.New("llm provider not configured")

// ConfigFromSettings assembles a Config from the settings store. Provider
// credentials live under "llm.<provider>.*"; they are read fresh for every
// job so key rotation takes effect without a restart.
func ConfigFromSettings(ctx context.Context, store *queue.Store) (Config, error) {
	var cfg Config
	provider, ok, err := store.SettingGet(ctx, queue.SettingLLMProvider)
	if err != nil {
		return cfg, err
	}
	if !ok || strings.TrimSpace(provider) == "" {
		return cfg, ErrNotConfigured
	}
	provider = strings.TrimSpace(provider)

	read := func(field string) (string, error) {
		value, _, err := store.SettingGet(ctx, fmt.Sprintf("llm.%s.%s", provider, field))
		return strings.TrimSpace(value), err
	}

	if cfg.APIKey, err = read("api_key"); err != nil {
		return cfg, err
	}
	if cfg.BaseURL, err = read("base_url"); err != nil {
		return cfg, err
	}
	if cfg.Model, err = read("model"); err != nil {
		return cfg, err
	}
	if cfg.ThinkingModel, err = read("thinking_model"); err != nil {
		return cfg, err
	}
	if cfg.APIKey == "" || cfg.BaseURL == "" || cfg.Model == "" {
		return cfg, fmt.Errorf("%w: provider %q needs api_key, base_url, and model", ErrNotConfigured, provider)
	}
	return cfg, nil
}

// Field extracts a single value from an LLM JSON payload without requiring
// the whole document to decode cleanly.
func Field(payload, path string) gjson.Result {
	return gjson.Get(strings.TrimSpace(stripCodeFenceBlock(payload)), path)
}
