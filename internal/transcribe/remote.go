package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"vidgo/internal/logging"
	"vidgo/internal/services"
)

const defaultPollInterval = 5 * time.Second

// RemoteVidgo hands the audio to another vidgo instance over its external
// transcription API and polls until the task settles.
type RemoteVidgo struct {
	httpClient   *http.Client
	pollInterval time.Duration
	log          *slog.Logger
}

type RemoteOption func(*RemoteVidgo)

func WithRemoteHTTPClient(hc *http.Client) RemoteOption {
	return func(e *RemoteVidgo) { e.httpClient = hc }
}

func WithRemotePollInterval(d time.Duration) RemoteOption {
	return func(e *RemoteVidgo) { e.pollInterval = d }
}

func NewRemoteVidgo(logger *slog.Logger, opts ...RemoteOption) *RemoteVidgo {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &RemoteVidgo{
		httpClient:   http.DefaultClient,
		pollInterval: defaultPollInterval,
		log:          logging.NewComponentLogger(logger, "transcribe.remote"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RemoteVidgo) Descriptor() Descriptor {
	return Descriptor{Name: "remote_vidgo", Type: "remote"}
}

func (e *RemoteVidgo) Available(ctx context.Context, settings map[string]string) error {
	base, err := remoteBase(settings)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/external_transcription/list", nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "transcribe.remote", "available", "build request", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "transcribe.remote", "available", base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrUnavailable, "transcribe.remote", "available",
			fmt.Sprintf("%s: status %d", base, resp.StatusCode), nil)
	}
	return nil
}

func (e *RemoteVidgo) Transcribe(ctx context.Context, settings map[string]string, req Request) (string, error) {
	base, err := remoteBase(settings)
	if err != nil {
		return "", err
	}

	report(req.OnStatus, "submitting audio to remote instance")
	taskID, err := e.submit(ctx, base, req.AudioPath, req.Language)
	if err != nil {
		return "", err
	}
	e.log.Info("remote task submitted", logging.String("task_id", taskID))

	if err := e.waitForCompletion(ctx, base, taskID, req); err != nil {
		return "", err
	}

	srt, err := e.result(ctx, base, taskID)
	if err != nil {
		return "", err
	}
	e.cleanup(base, taskID)
	if req.OnProgress != nil {
		req.OnProgress(1)
	}
	return srt, nil
}

func (e *RemoteVidgo) submit(ctx context.Context, base, audioPath, language string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe.remote", "submit", "open "+audioPath, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio_file", filepath.Base(audioPath))
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.remote", "submit", "build form", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.remote", "submit", "copy audio", err)
	}
	if lang := languageOrAuto(language); lang != "auto" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.remote", "submit", "finish form", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/external_transcription/submit", &body)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe.remote", "submit", "build request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	payload, err := e.do(httpReq, "submit")
	if err != nil {
		return "", err
	}
	taskID := gjson.GetBytes(payload, "task_id").String()
	if taskID == "" {
		return "", services.Wrap(services.ErrParse, "transcribe.remote", "submit", "response has no task_id", nil)
	}
	return taskID, nil
}

func (e *RemoteVidgo) waitForCompletion(ctx context.Context, base, taskID string, req Request) error {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrCanceled, "transcribe.remote", "poll", "wait aborted", ctx.Err())
		case <-ticker.C:
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/api/external_transcription/%s/status", base, taskID), nil)
		if err != nil {
			return services.Wrap(services.ErrValidation, "transcribe.remote", "poll", "build request", err)
		}
		payload, err := e.do(httpReq, "poll")
		if err != nil {
			return err
		}

		status := strings.ToLower(gjson.GetBytes(payload, "status").String())
		report(req.OnStatus, "remote task "+status)
		switch status {
		case "completed":
			return nil
		case "failed":
			return services.Wrap(services.ErrPermanent, "transcribe.remote", "poll",
				"remote task failed: "+gjson.GetBytes(payload, "error_message").String(), nil)
		case "queued", "running":
			if fraction := gjson.GetBytes(payload, "progress").Float(); fraction > 0 && req.OnProgress != nil {
				req.OnProgress(fraction / 100)
			}
		default:
			return services.Wrap(services.ErrParse, "transcribe.remote", "poll",
				"unexpected task status "+status, nil)
		}
	}
}

func (e *RemoteVidgo) result(ctx context.Context, base, taskID string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/external_transcription/%s/result", base, taskID), nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribe.remote", "result", "build request", err)
	}
	payload, err := e.do(httpReq, "result")
	if err != nil {
		return "", err
	}
	srt := string(payload)
	if strings.TrimSpace(srt) == "" {
		return "", services.Wrap(services.ErrParse, "transcribe.remote", "result", "empty transcript", nil)
	}
	return srt, nil
}

// cleanup is best effort; a leftover task on the remote expires on its own.
func (e *RemoteVidgo) cleanup(base, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/api/external_transcription/%s/delete", base, taskID), nil)
	if err != nil {
		return
	}
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.log.Warn("remote task cleanup failed", logging.Error(err))
		return
	}
	resp.Body.Close()
}

func (e *RemoteVidgo) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, services.Wrap(services.ErrCanceled, "transcribe.remote", operation, "request aborted", req.Context().Err())
		}
		return nil, services.Wrap(services.ErrTransient, "transcribe.remote", operation, req.URL.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrPermanent
		if resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return nil, services.Wrap(marker, "transcribe.remote", operation,
			fmt.Sprintf("%s: status %d", req.URL.String(), resp.StatusCode), nil)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe.remote", operation, "read body", err)
	}
	return payload, nil
}

func remoteBase(settings map[string]string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(settings[SettingRemoteBaseURL]), "/")
	if base == "" {
		return "", services.Wrap(services.ErrUnavailable, "transcribe.remote", "config",
			"remote base url not configured", nil)
	}
	return base, nil
}
