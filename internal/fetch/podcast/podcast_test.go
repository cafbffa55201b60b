package podcast

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/fetch"
	"vidgo/internal/services"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" version="2.0">
<channel>
  <title>Tech Talks</title>
  <itunes:author>The Hosts</itunes:author>
  <itunes:image href="https://example.com/show.jpg"/>
  <item>
    <title>Episode 2: Compilers</title>
    <guid>tag:feed,2024:ep1000700002</guid>
    <link>https://podcasts.apple.com/us/podcast/id555?i=1000700002</link>
    <itunes:duration>01:02:03</itunes:duration>
    <enclosure url="%[1]s/audio/ep2.m4a" type="audio/x-m4a" length="100"/>
    <enclosure url="%[1]s/audio/ep2.mp3" type="audio/mpeg" length="90"/>
  </item>
  <item>
    <title>Episode 1: Interpreters</title>
    <guid>tag:feed,2024:ep1000700001</guid>
    <itunes:duration>1800</itunes:duration>
    <enclosure url="%[1]s/audio/ep1.mp3" type="audio/mpeg" length="80"/>
  </item>
</channel>
</rss>`

func podcastServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/lookup", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "555", r.URL.Query().Get("id"))
		fmt.Fprintf(w, `{"resultCount":1,"results":[{"feedUrl":"%s/feed.xml",
			"artistName":"The Hosts","artworkUrl600":"https://example.com/art.jpg"}]}`, server.URL)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, feedXML, server.URL)
	})
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio bytes for " + r.URL.Path))
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return New(nil, WithLookupBase(server.URL), WithHTTPClient(server.Client()))
}

func TestFetchPrefersM4AEnclosure(t *testing.T) {
	server := podcastServer(t)
	client := newTestClient(t, server)
	workDir := t.TempDir()

	var last float64
	results, err := client.Fetch(context.Background(),
		"https://podcasts.apple.com/us/podcast/tech-talks/id555?i=1000700002",
		fetch.Params{WorkDir: workDir, OnProgress: func(f float64) { last = f }})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	require.Equal(t, fetch.KindAudio, res.Kind)
	require.Equal(t, "Episode 2: Compilers", res.Title)
	require.Equal(t, "The Hosts", res.Author)
	require.InDelta(t, 3723, res.DurationS, 1e-9)
	require.Equal(t, "https://example.com/show.jpg", res.ThumbnailURL)
	require.Equal(t, ".m4a", filepath.Ext(res.WorkFile))
	require.FileExists(t, res.WorkFile)

	data, err := os.ReadFile(res.WorkFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "/audio/ep2.m4a")
	require.InDelta(t, 1.0, last, 1e-9)
}

func TestFetchFallsBackToLatestEpisode(t *testing.T) {
	server := podcastServer(t)
	client := newTestClient(t, server)

	results, err := client.Fetch(context.Background(),
		"https://podcasts.apple.com/us/podcast/tech-talks/id555",
		fetch.Params{WorkDir: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "Episode 2: Compilers", results[0].Title)
}

func TestFetchSelectsEpisodeByGUID(t *testing.T) {
	server := podcastServer(t)
	client := newTestClient(t, server)

	results, err := client.Fetch(context.Background(),
		"https://podcasts.apple.com/us/podcast/tech-talks/id555?i=1000700001",
		fetch.Params{WorkDir: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "Episode 1: Interpreters", results[0].Title)
	require.Equal(t, ".mp3", filepath.Ext(results[0].WorkFile))
	require.InDelta(t, 1800, results[0].DurationS, 1e-9)
}

func TestFetchRejectsURLWithoutShowID(t *testing.T) {
	client := New(nil)
	_, err := client.Fetch(context.Background(),
		"https://podcasts.apple.com/us/browse", fetch.Params{})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestFetchMissingFeedIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"resultCount":0,"results":[]}`)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server)
	_, err := client.Fetch(context.Background(),
		"https://podcasts.apple.com/us/podcast/id555", fetch.Params{WorkDir: t.TempDir()})
	require.ErrorIs(t, err, services.ErrPermanent)
}

func TestParseDuration(t *testing.T) {
	require.InDelta(t, 3723, parseDuration("01:02:03"), 1e-9)
	require.InDelta(t, 125, parseDuration("2:05"), 1e-9)
	require.InDelta(t, 1800, parseDuration("1800"), 1e-9)
	require.InDelta(t, 0, parseDuration(""), 1e-9)
	require.InDelta(t, 0, parseDuration("abc"), 1e-9)
}

func TestMatches(t *testing.T) {
	client := New(nil)
	require.True(t, client.Matches("https://podcasts.apple.com/us/podcast/id555"))
	require.False(t, client.Matches("https://music.apple.com/album/1"))
}
