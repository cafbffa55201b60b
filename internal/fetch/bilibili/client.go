package bilibili

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"vidgo/internal/fetch"
	"vidgo/internal/logging"
	"vidgo/internal/services"
)

const (
	defaultAPIBase = "https://api.bilibili.com"
	referer        = "https://www.bilibili.com"

	// DASH stream ids, in pick order.
	video1080p   = 80
	video720p    = 64
	audioDefault = 30280

	downloadChunk = 512 * 1024
)

var (
	bvPattern   = regexp.MustCompile(`(BV[0-9A-Za-z]+)`)
	avPattern   = regexp.MustCompile(`av(\d+)`)
	pagePattern = regexp.MustCompile(`[?&]p=(\d+)`)
)

// Muxer merges the separately downloaded video and audio streams. Satisfied
// by the transcoder.
type Muxer interface {
	Mux(ctx context.Context, video, audio, out string, onProgress func(float64)) error
}

// Client downloads DASH streams from the platform API, signing playurl
// requests with the WBI scheme.
type Client struct {
	httpClient *http.Client
	apiBase    string
	muxer      Muxer
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIBase overrides the API origin. Tests point it at a local server.
func WithAPIBase(base string) Option {
	return func(c *Client) { c.apiBase = strings.TrimRight(base, "/") }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(muxer Muxer, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		httpClient: http.DefaultClient,
		apiBase:    defaultAPIBase,
		muxer:      muxer,
		log:        logging.NewComponentLogger(logger, "fetch.bilibili"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "bilibili" }

func (c *Client) Matches(raw string) bool {
	return strings.Contains(raw, "bilibili.com") || strings.Contains(raw, "b23.tv")
}

type page struct {
	CID      int64
	Part     string
	Duration float64
}

// Fetch resolves the video, enumerates its parts, downloads the picked
// video and audio DASH streams for each, and muxes them into one mp4 per
// part in the work directory.
func (c *Client) Fetch(ctx context.Context, raw string, params fetch.Params) ([]fetch.IngestResult, error) {
	bvid, avid, urlPage := extractIDs(raw)
	if bvid == "" && avid == "" {
		return nil, services.Wrap(services.ErrValidation, "bilibili", "fetch", "no BV/av id in url "+raw, nil)
	}

	info, err := c.videoInfo(ctx, bvid, avid, params)
	if err != nil {
		return nil, err
	}
	bvid = info.bvid

	pages, err := c.pagelist(ctx, bvid, params)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "bilibili", "fetch", "empty pagelist for "+bvid, nil)
	}

	wanted := params.PartIndex
	if wanted == 0 && urlPage > 0 {
		wanted = urlPage
	}
	if wanted > len(pages) {
		return nil, services.Wrap(services.ErrValidation, "bilibili", "fetch",
			fmt.Sprintf("part %d out of range, video has %d", wanted, len(pages)), nil)
	}

	imgKey, subKey, err := c.wbiKeys(ctx, params)
	if err != nil {
		return nil, err
	}

	selected := make([]int, 0, len(pages))
	if wanted > 0 {
		selected = append(selected, wanted-1)
	} else {
		for i := range pages {
			selected = append(selected, i)
		}
	}

	results := make([]fetch.IngestResult, 0, len(selected))
	for n, idx := range selected {
		part := pages[idx]
		partProgress := scaleProgress(params.OnProgress, n, len(selected))

		res, err := c.fetchPart(ctx, bvid, info, part, idx+1, len(pages), params, imgKey, subKey, partProgress)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Client) fetchPart(ctx context.Context, bvid string, info videoInfo, part page, partIndex, partTotal int, params fetch.Params, imgKey, subKey string, onProgress func(float64)) (fetch.IngestResult, error) {
	var zero fetch.IngestResult

	videoURL, audioURL, err := c.playURL(ctx, bvid, part.CID, params, imgKey, subKey)
	if err != nil {
		return zero, err
	}

	safe := fetch.SanitizeFilename(fmt.Sprintf("%s-%d", info.title, partIndex), 200)
	videoFile := filepath.Join(params.WorkDir, safe+"_video.mp4")
	audioFile := filepath.Join(params.WorkDir, safe+"_audio.m4a")
	merged := filepath.Join(params.WorkDir, safe+".mp4")

	if err := c.download(ctx, videoURL, videoFile, params, sliceProgress(onProgress, 0, 0.45)); err != nil {
		return zero, err
	}
	if err := c.download(ctx, audioURL, audioFile, params, sliceProgress(onProgress, 0.45, 0.6)); err != nil {
		return zero, err
	}
	if err := c.muxer.Mux(ctx, videoFile, audioFile, merged, sliceProgress(onProgress, 0.6, 1)); err != nil {
		return zero, err
	}
	for _, intermediate := range []string{videoFile, audioFile} {
		_ = os.Remove(intermediate)
	}

	title := info.title
	if partTotal > 1 && part.Part != "" {
		title = fmt.Sprintf("%s - %s", info.title, part.Part)
	}
	duration := part.Duration
	if duration <= 0 {
		duration = info.duration
	}
	c.log.Info("part downloaded",
		logging.String("bvid", bvid),
		logging.Int("part", partIndex),
		logging.String("file", merged))
	return fetch.IngestResult{
		Kind:         fetch.KindVideo,
		WorkFile:     merged,
		Title:        title,
		Author:       info.owner,
		DurationS:    duration,
		ThumbnailURL: info.pic,
		PartIndex:    partIndex,
		PartTotal:    partTotal,
	}, nil
}

type videoInfo struct {
	bvid     string
	title    string
	owner    string
	pic      string
	duration float64
}

func (c *Client) videoInfo(ctx context.Context, bvid, avid string, params fetch.Params) (videoInfo, error) {
	query := url.Values{}
	if bvid != "" {
		query.Set("bvid", bvid)
	} else {
		query.Set("aid", strings.TrimPrefix(avid, "av"))
	}
	data, err := c.apiGet(ctx, "/x/web-interface/wbi/view", query, params)
	if err != nil {
		return videoInfo{}, err
	}
	return videoInfo{
		bvid:     data.Get("bvid").String(),
		title:    data.Get("title").String(),
		owner:    data.Get("owner.name").String(),
		pic:      data.Get("pic").String(),
		duration: data.Get("duration").Float(),
	}, nil
}

func (c *Client) pagelist(ctx context.Context, bvid string, params fetch.Params) ([]page, error) {
	query := url.Values{}
	query.Set("bvid", bvid)
	data, err := c.apiGet(ctx, "/x/player/pagelist", query, params)
	if err != nil {
		return nil, err
	}
	var pages []page
	for _, item := range data.Array() {
		pages = append(pages, page{
			CID:      item.Get("cid").Int(),
			Part:     item.Get("part").String(),
			Duration: item.Get("duration").Float(),
		})
	}
	return pages, nil
}

// wbiKeys pulls the current img and sub signing keys from the nav endpoint.
func (c *Client) wbiKeys(ctx context.Context, params fetch.Params) (string, string, error) {
	data, err := c.apiGet(ctx, "/x/web-interface/nav", nil, params)
	if err != nil {
		return "", "", err
	}
	imgKey := keyFromURL(data.Get("wbi_img.img_url").String())
	subKey := keyFromURL(data.Get("wbi_img.sub_url").String())
	if imgKey == "" || subKey == "" {
		return "", "", services.Wrap(services.ErrPermanent, "bilibili", "wbi keys", "nav response missing wbi_img keys", nil)
	}
	return imgKey, subKey, nil
}

// playURL requests the signed DASH manifest and picks the best streams:
// video id 80, then 64, then the first offered; audio id 30280, then first.
func (c *Client) playURL(ctx context.Context, bvid string, cid int64, params fetch.Params, imgKey, subKey string) (string, string, error) {
	query := url.Values{}
	query.Set("bvid", bvid)
	query.Set("cid", strconv.FormatInt(cid, 10))
	query.Set("qn", "0")
	query.Set("fnval", "16")
	query.Set("fnver", "0")
	query.Set("fourk", "1")
	signed := signQuery(query, imgKey, subKey, c.now())

	data, err := c.apiGetSigned(ctx, "/x/player/wbi/playurl", signed, params)
	if err != nil {
		return "", "", err
	}

	videoURL := pickStream(data.Get("dash.video"), video1080p, video720p)
	audioURL := pickStream(data.Get("dash.audio"), audioDefault)
	if videoURL == "" || audioURL == "" {
		return "", "", services.Wrap(services.ErrPermanent, "bilibili", "playurl", "no usable dash streams", nil)
	}
	return videoURL, audioURL, nil
}

// pickStream returns the baseUrl of the first stream matching the preferred
// ids in order, falling back to the first stream offered.
func pickStream(streams gjson.Result, preferredIDs ...int64) string {
	items := streams.Array()
	if len(items) == 0 {
		return ""
	}
	for _, want := range preferredIDs {
		for _, item := range items {
			if item.Get("id").Int() == want {
				return item.Get("baseUrl").String()
			}
		}
	}
	return items[0].Get("baseUrl").String()
}

func (c *Client) apiGet(ctx context.Context, path string, query url.Values, params fetch.Params) (gjson.Result, error) {
	return c.apiGetSigned(ctx, path, query, params)
}

func (c *Client) apiGetSigned(ctx context.Context, path string, query url.Values, params fetch.Params) (gjson.Result, error) {
	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrValidation, "bilibili", "api", "build request", err)
	}
	c.setHeaders(req, params)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrTransient, "bilibili", "api", "get "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrTransient, "bilibili", "api", "read "+path, err)
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return gjson.Result{}, services.Wrap(marker, "bilibili", "api",
			fmt.Sprintf("get %s: status %d", path, resp.StatusCode), nil)
	}

	payload := gjson.ParseBytes(body)
	if code := payload.Get("code").Int(); code != 0 {
		// -412 is the risk-control rejection for bad or stale signatures.
		message := payload.Get("message").String()
		return gjson.Result{}, services.Wrap(services.ErrPermanent, "bilibili", "api",
			fmt.Sprintf("get %s: api code %d: %s", path, code, message), nil)
	}
	return payload.Get("data"), nil
}

// download streams a CDN URL to disk. The CDN checks Referer and UA.
func (c *Client) download(ctx context.Context, rawURL, dest string, params fetch.Params, onProgress func(float64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "bilibili", "download", "build request", err)
	}
	c.setHeaders(req, params)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "bilibili", "download", "get stream", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "bilibili", "download",
			fmt.Sprintf("get stream: status %d", resp.StatusCode), nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrUnavailable, "bilibili", "download", "create work dir", err)
	}
	file, err := os.Create(dest)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "bilibili", "download", "create "+dest, err)
	}
	defer file.Close()

	total := resp.ContentLength
	var written int64
	buf := make([]byte, downloadChunk)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return services.Wrap(services.ErrUnavailable, "bilibili", "download", "write "+dest, err)
			}
			written += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(written) / float64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return services.Wrap(services.ErrCanceled, "bilibili", "download", "stream body", ctx.Err())
			}
			return services.Wrap(services.ErrTransient, "bilibili", "download", "stream body", readErr)
		}
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, params fetch.Params) {
	req.Header.Set("Referer", referer)
	if params.UserAgent != "" {
		req.Header.Set("User-Agent", params.UserAgent)
	}
	if params.Credential != "" {
		req.Header.Set("Cookie", "SESSDATA="+params.Credential)
	}
}

// extractIDs pulls the BV id, av id, and page selector out of a URL.
func extractIDs(raw string) (bvid, avid string, page int) {
	if m := bvPattern.FindStringSubmatch(raw); m != nil {
		bvid = m[1]
	}
	if m := avPattern.FindStringSubmatch(raw); m != nil {
		avid = "av" + m[1]
	}
	if m := pagePattern.FindStringSubmatch(raw); m != nil {
		page, _ = strconv.Atoi(m[1])
	}
	return bvid, avid, page
}

// scaleProgress maps a per-part fraction onto the whole multi-part fetch.
func scaleProgress(onProgress func(float64), part, totalParts int) func(float64) {
	if onProgress == nil || totalParts <= 0 {
		return nil
	}
	return func(f float64) {
		onProgress((float64(part) + f) / float64(totalParts))
	}
}

// sliceProgress maps a [0,1] fraction onto the [from,to] slice of a part.
func sliceProgress(onProgress func(float64), from, to float64) func(float64) {
	if onProgress == nil {
		return nil
	}
	return func(f float64) {
		onProgress(from + f*(to-from))
	}
}
