package stage

import (
	"encoding/json"
	"strings"

	"vidgo/internal/queue"
	"vidgo/internal/services"
)

// IngestParams configures an ingest job. The URL fields come from the
// caller; the rest is bookkeeping the fetch stage leaves behind for the
// pipeline stages that follow it.
type IngestParams struct {
	URL        string `json:"url"`
	Credential string `json:"credential,omitempty"`
	PartIndex  int    `json:"part_index,omitempty"`

	AssetIDs []int64 `json:"asset_ids,omitempty"`
	// Thumbnails maps content key to the remote cover URL the source
	// platform published, when it published one.
	Thumbnails map[string]string `json:"thumbnails,omitempty"`
	// DerivedAudio maps content key to the saved_audio artifact extracted
	// from a video container.
	DerivedAudio map[string]string `json:"derived_audio,omitempty"`
}

// SubtitleParams configures transcription and translation jobs.
type SubtitleParams struct {
	TargetLang string `json:"target_lang,omitempty"`
	Terms      string `json:"terms,omitempty"`

	ASRAudio string `json:"asr_audio,omitempty"`
	WordsSRT string `json:"words_srt,omitempty"`
}

// TranslateRequested reports whether a target language was asked for, which
// decides at creation whether a transcribe job plans the translate stage.
func (p SubtitleParams) TranslateRequested() bool {
	return strings.TrimSpace(p.TargetLang) != ""
}

// ExportParams configures a burn-in export job.
type ExportParams struct {
	SubtitleType string `json:"subtitle_type,omitempty"`
}

func decodeParams(job *queue.Job, stageName string, v any) error {
	if strings.TrimSpace(job.ParamsJSON) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(job.ParamsJSON), v); err != nil {
		return services.Wrap(services.ErrValidation, "stage", stageName, "decode job params", err)
	}
	return nil
}

// storeParams writes params back onto the job; the manager persists the
// job row when the stage settles.
func storeParams(job *queue.Job, stageName string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return services.Wrap(services.ErrValidation, "stage", stageName, "encode job params", err)
	}
	job.ParamsJSON = string(data)
	return nil
}
