package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/services"
)

const scribeResponse = `{
	"language_code": "en",
	"words": [
		{"text": "Hello", "type": "word", "start": 0.0, "end": 0.4},
		{"text": " ", "type": "spacing", "start": 0.4, "end": 0.5},
		{"text": "(laughs)", "type": "audio_event", "start": 0.5, "end": 1.0},
		{"text": "there", "type": "word", "start": 1.0, "end": 1.3},
		{"text": ",", "type": "word", "start": 1.3, "end": 1.3},
		{"text": "General", "type": "word", "start": 1.5, "end": 1.5}
	]
}`

func elevenLabsSettings(server *httptest.Server) map[string]string {
	return map[string]string{
		SettingElevenLabsAPIKey:  "xi-test-key",
		SettingElevenLabsBaseURL: server.URL,
	}
}

func TestElevenLabsTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/speech-to-text", r.URL.Path)
		require.Equal(t, "xi-test-key", r.Header.Get("xi-api-key"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		require.Equal(t, "clip.mp3", header.Filename)
		require.Equal(t, "scribe_v1", r.FormValue("model_id"))
		require.Equal(t, "en", r.FormValue("language_code"))
		fmt.Fprint(w, scribeResponse)
	}))
	t.Cleanup(server.Close)

	engine := NewElevenLabs(nil, WithElevenLabsHTTPClient(server.Client()))
	var fractions []float64
	srt, err := engine.Transcribe(context.Background(), elevenLabsSettings(server), Request{
		AudioPath:  writeAudio(t),
		Language:   "en",
		OnProgress: func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)
	require.Contains(t, srt, "Hello")
	require.Contains(t, srt, "there")
	require.Contains(t, srt, "General")
	require.NotContains(t, srt, "laughs")
	require.NotContains(t, srt, ",\n")
	require.Contains(t, srt, "00:00:01,500 --> 00:00:01,501")
	require.Equal(t, []float64{1.0}, fractions)
}

func TestElevenLabsTranscribeRejectsBadStatus(t *testing.T) {
	codes := map[int]error{
		http.StatusUnauthorized:        services.ErrPermanent,
		http.StatusInternalServerError: services.ErrTransient,
	}
	for code, want := range codes {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(code)
		}))

		engine := NewElevenLabs(nil, WithElevenLabsHTTPClient(server.Client()))
		_, err := engine.Transcribe(context.Background(), elevenLabsSettings(server), Request{
			AudioPath: writeAudio(t),
		})
		require.ErrorIs(t, err, want, "status %d", code)
		server.Close()
	}
}

func TestElevenLabsTranscribeEmptyWords(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"words":[]}`)
	}))
	t.Cleanup(server.Close)

	engine := NewElevenLabs(nil, WithElevenLabsHTTPClient(server.Client()))
	_, err := engine.Transcribe(context.Background(), elevenLabsSettings(server), Request{
		AudioPath: writeAudio(t),
	})
	require.ErrorIs(t, err, services.ErrParse)
}

func TestElevenLabsAvailableNeedsAPIKey(t *testing.T) {
	engine := NewElevenLabs(nil)
	err := engine.Available(context.Background(), map[string]string{})
	require.ErrorIs(t, err, services.ErrUnavailable)

	require.NoError(t, engine.Available(context.Background(),
		map[string]string{SettingElevenLabsAPIKey: "xi-test-key"}))
}
