package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Well-known settings keys. Provider-specific keys are built from these
// prefixes, for example "llm.openai.api_key".
const (
	SettingLLMProvider       = "llm.provider"
	SettingASRPrimaryEngine  = "asr.primary_engine"
	SettingASRFallbackEngine = "asr.fallback_engine"
	SettingRootPasswordHash  = "auth.root_password_hash"
	SettingRootPasswordSalt  = "auth.root_password_salt"
)

// SettingGet returns a settings value. Missing keys return ("", false).
func (s *Store) SettingGet(ctx context.Context, key string) (string, bool, error) {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, errors.New("settings key required")
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SettingSet stores a settings value, replacing any existing one.
func (s *Store) SettingSet(ctx context.Context, key, value string) error {
	ctx = ensureContext(ctx)
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings key required")
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SettingDelete removes a settings key. Deleting a missing key is not an error.
func (s *Store) SettingDelete(ctx context.Context, key string) error {
	ctx = ensureContext(ctx)
	_, err := s.execWithRetry(ctx, `DELETE FROM settings WHERE key = ?`, strings.TrimSpace(key))
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

// Settings returns every stored key/value pair.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}
