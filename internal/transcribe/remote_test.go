package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vidgo/internal/services"
)

type remoteServer struct {
	*httptest.Server
	polls   atomic.Int32
	deleted atomic.Bool
}

// newRemoteServer reports running on the first status poll, then completed.
func newRemoteServer(t *testing.T) *remoteServer {
	t.Helper()
	rs := &remoteServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/external_transcription/list", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"tasks":[]}`)
	})
	mux.HandleFunc("/api/external_transcription/submit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("audio_file")
		require.NoError(t, err)
		require.Equal(t, "clip.mp3", header.Filename)
		require.Equal(t, "zh", r.FormValue("language"))
		fmt.Fprint(w, `{"task_id":"task-7"}`)
	})
	mux.HandleFunc("/api/external_transcription/task-7/status", func(w http.ResponseWriter, _ *http.Request) {
		if rs.polls.Add(1) == 1 {
			fmt.Fprint(w, `{"status":"running","progress":40}`)
			return
		}
		fmt.Fprint(w, `{"status":"completed"}`)
	})
	mux.HandleFunc("/api/external_transcription/task-7/result", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "1\n00:00:00,000 --> 00:00:00,500\nHello\n")
	})
	mux.HandleFunc("/api/external_transcription/task-7/delete", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		rs.deleted.Store(true)
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func remoteSettings(server *httptest.Server) map[string]string {
	return map[string]string{SettingRemoteBaseURL: server.URL}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("mp3"), 0o644))
	return path
}

func newTestRemote(server *httptest.Server) *RemoteVidgo {
	return NewRemoteVidgo(nil,
		WithRemoteHTTPClient(server.Client()),
		WithRemotePollInterval(5*time.Millisecond))
}

func TestRemoteTranscribe(t *testing.T) {
	server := newRemoteServer(t)
	engine := newTestRemote(server.Server)

	var fractions []float64
	srt, err := engine.Transcribe(context.Background(), remoteSettings(server.Server), Request{
		AudioPath:  writeAudio(t),
		Language:   "zh",
		OnProgress: func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)
	require.Contains(t, srt, "Hello")
	require.True(t, server.deleted.Load())
	require.Equal(t, []float64{0.4, 1.0}, fractions)
}

func TestRemoteTranscribeFailedTaskIsPermanent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/external_transcription/submit", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"task_id":"task-9"}`)
	})
	mux.HandleFunc("/api/external_transcription/task-9/status", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"failed","error_message":"gpu out of memory"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	engine := newTestRemote(server)
	_, err := engine.Transcribe(context.Background(), remoteSettings(server), Request{
		AudioPath: writeAudio(t),
	})
	require.ErrorIs(t, err, services.ErrPermanent)
	require.Contains(t, err.Error(), "gpu out of memory")
}

func TestRemoteTranscribeCancelDuringPoll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/external_transcription/submit", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"task_id":"task-1"}`)
	})
	mux.HandleFunc("/api/external_transcription/task-1/status", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"queued"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	engine := newTestRemote(server)
	_, err := engine.Transcribe(ctx, remoteSettings(server), Request{AudioPath: writeAudio(t)})
	require.ErrorIs(t, err, services.ErrCanceled)
}

func TestRemoteAvailable(t *testing.T) {
	server := newRemoteServer(t)
	engine := newTestRemote(server.Server)

	require.NoError(t, engine.Available(context.Background(), remoteSettings(server.Server)))

	err := engine.Available(context.Background(), map[string]string{})
	require.ErrorIs(t, err, services.ErrUnavailable)
}

func TestRemoteAvailableRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	engine := newTestRemote(server)
	err := engine.Available(context.Background(), remoteSettings(server))
	require.ErrorIs(t, err, services.ErrUnavailable)
}
