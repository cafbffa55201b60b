package subtitles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidgo/internal/services/llm"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionResponse(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{"content": content},
			},
		},
	}
	require.NoError(t, json.NewEncoder(w).Encode(payload))
}

// translationServer answers faithful-pass batches with "direct:" prefixed
// lines and free-pass batches with "free:" prefixed lines, echoing the
// batch's own numbering.
func translationServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		system := req.Messages[0].Content
		user := req.Messages[1].Content

		idx := strings.Index(user, "INPUT:\n")
		require.GreaterOrEqual(t, idx, 0)
		var input map[string]map[string]string
		require.NoError(t, json.Unmarshal([]byte(user[idx+len("INPUT:\n"):]), &input))

		freePass := strings.Contains(system, "direct translation version")
		out := make(map[string]map[string]string, len(input))
		for key, entry := range input {
			if freePass {
				require.NotEmpty(t, entry["direct"])
				out[key] = map[string]string{
					"original": entry["original"],
					"direct":   entry["direct"],
					"reflect":  "fine as is",
					"free":     "free:" + entry["original"],
				}
			} else {
				out[key] = map[string]string{
					"original": entry["original"],
					"direct":   "direct:" + entry["original"],
				}
			}
		}
		encoded, err := json.Marshal(out)
		require.NoError(t, err)
		completionResponse(t, w, string(encoded))
	}))
	t.Cleanup(server.Close)
	return server
}

func testClient(t *testing.T, url string) *llm.Client {
	t.Helper()
	return llm.NewClient(llm.Config{APIKey: "test", BaseURL: url, Model: "demo-model"})
}

func lineCues(texts ...string) []Cue {
	cues := make([]Cue, len(texts))
	for i, text := range texts {
		cues[i] = Cue{
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i+1) * time.Second,
			Text:  text,
		}
	}
	return cues
}

func TestTranslatorTwoPass(t *testing.T) {
	server := translationServer(t)
	translator := NewTranslator(testClient(t, server.URL), "en", "zh")

	cues := lineCues("first line", "second line")
	out, err := translator.Translate(context.Background(), cues)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "free:first line", out[0].Translation)
	require.Equal(t, "free:second line", out[1].Translation)
	// Source text and timing are untouched.
	require.Equal(t, cues[0].Text, out[0].Text)
	require.Equal(t, cues[1].End, out[1].End)
}

func TestTranslatorKeepsOrderAcrossBatches(t *testing.T) {
	server := translationServer(t)
	translator := NewTranslator(testClient(t, server.URL), "en", "zh",
		WithTranslatorBatch(2, 1),
		WithTranslatorWorkers(4),
	)

	texts := make([]string, 11)
	for i := range texts {
		texts[i] = "line " + strings.Repeat("x", i+1)
	}
	out, err := translator.Translate(context.Background(), lineCues(texts...))
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, cue := range out {
		require.Equal(t, "free:"+texts[i], cue.Translation, "cue %d", i)
	}
}

func TestTranslatorDegradesOnUnparseableBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		completionResponse(t, w, "the model rambled instead of answering")
	}))
	t.Cleanup(server.Close)

	translator := NewTranslator(testClient(t, server.URL), "en", "zh")
	cues := lineCues("keep me", "and me")
	out, err := translator.Translate(context.Background(), cues)
	require.NoError(t, err)
	require.Equal(t, "keep me", out[0].Translation)
	require.Equal(t, "and me", out[1].Translation)
}

func TestTranslatorDegradesFreePassToDirect(t *testing.T) {
	// Faithful pass succeeds, free pass returns garbage.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if strings.Contains(req.Messages[0].Content, "direct translation version") {
			completionResponse(t, w, "not json at all")
			return
		}
		completionResponse(t, w, `{"1":{"original":"hello","direct":"direct:hello"}}`)
	}))
	t.Cleanup(server.Close)

	translator := NewTranslator(testClient(t, server.URL), "en", "zh")
	out, err := translator.Translate(context.Background(), lineCues("hello"))
	require.NoError(t, err)
	require.Equal(t, "direct:hello", out[0].Translation)
}

func TestTranslatorSendsContextAndTerms(t *testing.T) {
	var faithfulSystem string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !strings.Contains(req.Messages[0].Content, "direct translation version") {
			faithfulSystem = req.Messages[0].Content
		}
		completionResponse(t, w, `{}`)
	}))
	t.Cleanup(server.Close)

	translator := NewTranslator(testClient(t, server.URL), "en", "zh",
		WithTranslatorBatch(2, 3),
		WithTranslatorWorkers(1),
		WithTerms("GPU stays untranslated"),
	)
	cues := lineCues("one", "two", "three", "four", "five")
	_, err := translator.Translate(context.Background(), cues)
	require.NoError(t, err)

	// The last faithful batch covers lines 5 with lines 2-4 as context.
	require.Contains(t, faithfulSystem, "GPU stays untranslated")
	require.Contains(t, faithfulSystem, "2. two")
	require.Contains(t, faithfulSystem, "4. four")
}

func TestTranslatorValidation(t *testing.T) {
	translator := NewTranslator(nil, "en", "zh")
	_, err := translator.Translate(context.Background(), lineCues("text"))
	require.Error(t, err)

	server := translationServer(t)
	translator = NewTranslator(testClient(t, server.URL), "en", "zh")
	_, err = translator.Translate(context.Background(), nil)
	require.Error(t, err)
}

func TestTranslatorReportsProgress(t *testing.T) {
	server := translationServer(t)
	var last float64
	translator := NewTranslator(testClient(t, server.URL), "en", "zh",
		WithTranslatorBatch(1, 1),
		WithTranslatorWorkers(1),
		WithTranslatorProgress(func(fraction float64) { last = fraction }),
	)
	_, err := translator.Translate(context.Background(), lineCues("a line", "b line"))
	require.NoError(t, err)
	require.InDelta(t, 1.0, last, 1e-9)
}
