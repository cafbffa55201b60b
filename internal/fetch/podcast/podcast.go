// Package podcast fetches Apple Podcast episode audio. The show id from
// the URL goes through the iTunes lookup API to find the RSS feed, the
// feed names the episode enclosures, and the preferred audio file (m4a,
// then mp3) is downloaded directly.
package podcast

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"vidgo/internal/fetch"
	"vidgo/internal/logging"
	"vidgo/internal/services"
)

const defaultLookupBase = "https://itunes.apple.com"

var showIDPattern = regexp.MustCompile(`/id(\d+)`)
var episodeIDPattern = regexp.MustCompile(`[?&]i=(\d+)`)

type Client struct {
	httpClient *http.Client
	lookupBase string
	log        *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLookupBase overrides the iTunes API origin. Tests point it at a
// local server.
func WithLookupBase(base string) Option {
	return func(c *Client) { c.lookupBase = strings.TrimRight(base, "/") }
}

func New(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		httpClient: http.DefaultClient,
		lookupBase: defaultLookupBase,
		log:        logging.NewComponentLogger(logger, "fetch.podcast"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "apple_podcast" }

func (c *Client) Matches(raw string) bool {
	return strings.Contains(raw, "podcasts.apple.com")
}

// feed is the slice of an RSS document the fetch needs. Tags in the itunes
// namespace are matched by its full URL.
type feed struct {
	Channel struct {
		Title  string `xml:"title"`
		Author string `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd author"`
		Image  struct {
			Href string `xml:"href,attr"`
		} `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd image"`
		Items []feedItem `xml:"item"`
	} `xml:"channel"`
}

type feedItem struct {
	Title      string      `xml:"title"`
	GUID       string      `xml:"guid"`
	Link       string      `xml:"link"`
	Duration   string      `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd duration"`
	Enclosures []enclosure `xml:"enclosure"`
}

type enclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

func (c *Client) Fetch(ctx context.Context, raw string, params fetch.Params) ([]fetch.IngestResult, error) {
	showID := firstMatch(showIDPattern, raw)
	if showID == "" {
		return nil, services.Wrap(services.ErrValidation, "podcast", "fetch", "no show id in url "+raw, nil)
	}
	episodeID := firstMatch(episodeIDPattern, raw)

	feedURL, artwork, artist, err := c.lookupFeed(ctx, showID, params)
	if err != nil {
		return nil, err
	}

	doc, err := c.fetchFeed(ctx, feedURL, params)
	if err != nil {
		return nil, err
	}
	if len(doc.Channel.Items) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "podcast", "fetch", "feed has no episodes", nil)
	}

	item := selectEpisode(doc.Channel.Items, episodeID)
	audioURL, ext := pickEnclosure(item.Enclosures)
	if audioURL == "" {
		return nil, services.Wrap(services.ErrPermanent, "podcast", "fetch",
			"episode has no audio enclosure: "+item.Title, nil)
	}

	out := filepath.Join(params.WorkDir, fetch.SanitizeFilename(item.Title, 200)+"."+ext)
	if err := c.download(ctx, audioURL, out, params); err != nil {
		return nil, err
	}

	author := doc.Channel.Author
	if author == "" {
		author = artist
	}
	thumbnail := doc.Channel.Image.Href
	if thumbnail == "" {
		thumbnail = artwork
	}
	c.log.Info("episode downloaded",
		logging.String("show", doc.Channel.Title),
		logging.String("episode", item.Title),
		logging.String("file", out))
	return []fetch.IngestResult{{
		Kind:         fetch.KindAudio,
		WorkFile:     out,
		Title:        item.Title,
		Author:       author,
		DurationS:    parseDuration(item.Duration),
		ThumbnailURL: thumbnail,
		PartIndex:    1,
		PartTotal:    1,
	}}, nil
}

// lookupFeed resolves a show id into its RSS feed URL via the iTunes
// lookup API.
func (c *Client) lookupFeed(ctx context.Context, showID string, params fetch.Params) (feedURL, artwork, artist string, err error) {
	endpoint := fmt.Sprintf("%s/lookup?id=%s&entity=podcast", c.lookupBase, showID)
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return "", "", "", err
	}
	result := gjson.GetBytes(body, "results.0")
	feedURL = result.Get("feedUrl").String()
	if feedURL == "" {
		return "", "", "", services.Wrap(services.ErrPermanent, "podcast", "lookup",
			"no feed url for show "+showID, nil)
	}
	return feedURL, result.Get("artworkUrl600").String(), result.Get("artistName").String(), nil
}

func (c *Client) fetchFeed(ctx context.Context, feedURL string, params fetch.Params) (feed, error) {
	var doc feed
	body, err := c.get(ctx, feedURL, params)
	if err != nil {
		return doc, err
	}
	if err := xml.Unmarshal(body, &doc); err != nil {
		return doc, services.Wrap(services.ErrParse, "podcast", "feed", "decode rss", err)
	}
	return doc, nil
}

// selectEpisode matches the URL's episode id against item guids and links,
// defaulting to the newest episode.
func selectEpisode(items []feedItem, episodeID string) feedItem {
	if episodeID != "" {
		for _, item := range items {
			if strings.Contains(item.GUID, episodeID) || strings.Contains(item.Link, episodeID) {
				return item
			}
		}
	}
	return items[0]
}

// pickEnclosure prefers m4a audio, then mp3, then whatever the feed offers.
func pickEnclosure(enclosures []enclosure) (string, string) {
	type pref struct {
		match func(enclosure) bool
		ext   string
	}
	prefs := []pref{
		{func(e enclosure) bool {
			return strings.Contains(e.Type, "m4a") || strings.HasSuffix(urlPath(e.URL), ".m4a")
		}, "m4a"},
		{func(e enclosure) bool {
			return strings.Contains(e.Type, "mpeg") || strings.HasSuffix(urlPath(e.URL), ".mp3")
		}, "mp3"},
	}
	for _, p := range prefs {
		for _, e := range enclosures {
			if p.match(e) {
				return e.URL, p.ext
			}
		}
	}
	for _, e := range enclosures {
		if e.URL != "" {
			ext := strings.TrimPrefix(filepath.Ext(urlPath(e.URL)), ".")
			if ext == "" {
				ext = "mp3"
			}
			return e.URL, ext
		}
	}
	return "", ""
}

func urlPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// parseDuration accepts plain seconds or HH:MM:SS / MM:SS clock strings.
func parseDuration(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if !strings.Contains(raw, ":") {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds < 0 {
			return 0
		}
		return seconds
	}
	var total float64
	for _, part := range strings.Split(raw, ":") {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0
		}
		total = total*60 + value
	}
	return total
}

func (c *Client) get(ctx context.Context, endpoint string, params fetch.Params) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "podcast", "get", "build request", err)
	}
	if params.UserAgent != "" {
		req.Header.Set("User-Agent", params.UserAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "podcast", "get", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "podcast", "get",
			fmt.Sprintf("%s: status %d", endpoint, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "podcast", "get", "read body", err)
	}
	return body, nil
}

func (c *Client) download(ctx context.Context, rawURL, dest string, params fetch.Params) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "podcast", "download", "build request", err)
	}
	if params.UserAgent != "" {
		req.Header.Set("User-Agent", params.UserAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "podcast", "download", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "podcast", "download",
			fmt.Sprintf("%s: status %d", rawURL, resp.StatusCode), nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "podcast", "download", "create work dir", err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "podcast", "download", "create "+dest, err)
	}
	defer file.Close()

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return services.Wrap(services.ErrUnavailable, "podcast", "download", "write "+dest, err)
			}
			written += int64(n)
			if params.OnProgress != nil && total > 0 {
				params.OnProgress(float64(written) / float64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return services.Wrap(services.ErrCanceled, "podcast", "download", "stream body", ctx.Err())
			}
			return services.Wrap(services.ErrTransient, "podcast", "download", "stream body", readErr)
		}
	}
	if params.OnProgress != nil {
		params.OnProgress(1)
	}
	return nil
}

func firstMatch(re *regexp.Regexp, raw string) string {
	if m := re.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
