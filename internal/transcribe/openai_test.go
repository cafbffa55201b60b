package transcribe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/services"
)

func TestOpenAIAvailableRequiresKey(t *testing.T) {
	engine := NewOpenAIWhisper(nil)

	err := engine.Available(context.Background(), map[string]string{})
	require.ErrorIs(t, err, services.ErrUnavailable)

	require.NoError(t, engine.Available(context.Background(),
		map[string]string{SettingOpenAIAPIKey: "sk-test"}))
}

func TestOpenAIDescriptor(t *testing.T) {
	desc := NewOpenAIWhisper(nil).Descriptor()
	require.Equal(t, "openai_whisper", desc.Name)
	require.True(t, desc.RequiresAPIKey)
}

func TestWordSRTFromVerboseJSON(t *testing.T) {
	raw := `{
		"text": "Hello world",
		"words": [
			{"word": "Hello", "start": 0.0, "end": 0.48},
			{"word": " ", "start": 0.48, "end": 0.5},
			{"word": "world", "start": 0.5, "end": 1.02}
		]
	}`
	srt, err := wordSRTFromVerboseJSON(raw)
	require.NoError(t, err)
	require.Contains(t, srt, "Hello")
	require.Contains(t, srt, "00:00:00,500 --> 00:00:01,020")

	// Whitespace-only tokens never become cues.
	require.NotContains(t, srt, "3\n")
}

func TestWordSRTFromVerboseJSONRejectsMissingWords(t *testing.T) {
	_, err := wordSRTFromVerboseJSON(`{"text":"plain transcript"}`)
	require.ErrorIs(t, err, services.ErrParse)

	_, err = wordSRTFromVerboseJSON(`{"words":[]}`)
	require.ErrorIs(t, err, services.ErrParse)
}
