package queue

import (
	"strings"
	"time"
)

// Kind identifies what a job does. The kind determines the stage plan and
// the lane that executes it.
type Kind string

const (
	KindIngestBilibili Kind = "ingest_bilibili"
	KindIngestYouTube  Kind = "ingest_youtube"
	KindIngestPodcast  Kind = "ingest_podcast"
	KindTranscribe     Kind = "transcribe"
	KindTranslateOnly  Kind = "translate_only"
	KindExportBurn     Kind = "export_burn"
)

var allKinds = []Kind{
	KindIngestBilibili,
	KindIngestYouTube,
	KindIngestPodcast,
	KindTranscribe,
	KindTranslateOnly,
	KindExportBurn,
}

var kindSet = func() map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(allKinds))
	for _, kind := range allKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := kindSet[normalized]
	return normalized, ok
}

// AllKinds returns the ordered list of known job kinds.
func AllKinds() []Kind {
	cp := make([]Kind, len(allKinds))
	copy(cp, allKinds)
	return cp
}

// Lane partitions jobs across independent worker loops.
type Lane string

const (
	LaneDownload Lane = "download"
	LaneSubtitle Lane = "subtitle"
	LaneExport   Lane = "export"
)

// LaneForKind maps a job kind to the lane that executes it.
func LaneForKind(kind Kind) Lane {
	switch kind {
	case KindIngestBilibili, KindIngestYouTube, KindIngestPodcast:
		return LaneDownload
	case KindExportBurn:
		return LaneExport
	default:
		return LaneSubtitle
	}
}

// KindsForLane returns the job kinds a lane polls for.
func KindsForLane(lane Lane) []Kind {
	var kinds []Kind
	for _, kind := range allKinds {
		if LaneForKind(kind) == lane {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Status represents the lifecycle of a job or a single stage.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCanceled  Status = "canceled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// IsTerminal reports whether the status admits no further transitions other
// than an explicit retry.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusCanceled:
		return true
	}
	return false
}

// Stage names shared by the plans and the executors.
const (
	StageFetch        = "fetch"
	StageConvert      = "convert"
	StageExtractAudio = "extract_audio"
	StageWaveform     = "waveform"
	StageThumbnail    = "thumbnail"
	StagePrepareAudio = "prepare_audio"
	StageTranscribe   = "transcribe"
	StageOptimize     = "optimize"
	StageTranslate    = "translate"
	StageBurn         = "burn"
)

// StageState tracks the execution of one stage within a job. States are
// persisted as a JSON array on the job row.
type StageState struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	Progress   float64    `json:"progress"`
	Message    string     `json:"message,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TranslationParams is implemented by job params that decide at creation
// whether the translate stage applies. Only transcribe jobs consult it;
// translate_only jobs always translate.
type TranslationParams interface {
	TranslateRequested() bool
}

// PlanStages returns the initial stage list for a job kind. A stage marked
// skipped at creation never runs and never blocks job completion.
func PlanStages(kind Kind, translate bool) []StageState {
	names := func(entries ...string) []StageState {
		stages := make([]StageState, 0, len(entries))
		for _, name := range entries {
			stages = append(stages, StageState{Name: name, Status: StatusQueued})
		}
		return stages
	}
	switch kind {
	case KindIngestBilibili, KindIngestYouTube, KindIngestPodcast:
		return names(StageFetch, StageConvert, StageExtractAudio, StageWaveform, StageThumbnail)
	case KindTranscribe:
		stages := names(StagePrepareAudio, StageTranscribe, StageOptimize, StageTranslate)
		if !translate {
			stages[3].Status = StatusSkipped
		}
		return stages
	case KindTranslateOnly:
		stages := names(StageTranscribe, StageOptimize, StageTranslate)
		stages[0].Status = StatusSkipped
		stages[1].Status = StatusSkipped
		return stages
	case KindExportBurn:
		return names(StageBurn)
	default:
		return nil
	}
}

// Job represents one queued unit of work persisted in SQLite.
type Job struct {
	ID            int64
	Kind          Kind
	AssetID       int64
	ParamsJSON    string
	Stages        []StageState
	Status        Status
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// Lane returns the lane this job executes on.
func (j *Job) Lane() Lane {
	return LaneForKind(j.Kind)
}

// Stage returns a pointer to the named stage state, or nil.
func (j *Job) Stage(name string) *StageState {
	for i := range j.Stages {
		if j.Stages[i].Name == name {
			return &j.Stages[i]
		}
	}
	return nil
}

// NextStage returns the first stage still waiting to run, or nil when none
// remain.
func (j *Job) NextStage() *StageState {
	for i := range j.Stages {
		switch j.Stages[i].Status {
		case StatusQueued, StatusRunning:
			return &j.Stages[i]
		}
	}
	return nil
}

// RecomputeStatus derives the job-level status from the stage states and
// stores it on the job.
func (j *Job) RecomputeStatus() Status {
	var (
		anyRunning  bool
		anyFailed   bool
		anyCanceled bool
		anyQueued   bool
	)
	for _, stage := range j.Stages {
		switch stage.Status {
		case StatusRunning:
			anyRunning = true
		case StatusFailed:
			anyFailed = true
		case StatusCanceled:
			anyCanceled = true
		case StatusQueued:
			anyQueued = true
		}
	}
	switch {
	case anyRunning:
		j.Status = StatusRunning
	case anyFailed:
		j.Status = StatusFailed
	case anyCanceled:
		j.Status = StatusCanceled
	case anyQueued:
		j.Status = StatusQueued
	default:
		j.Status = StatusCompleted
	}
	return j.Status
}

// AssetKind distinguishes video from audio-only assets.
type AssetKind string

const (
	AssetVideo AssetKind = "video"
	AssetAudio AssetKind = "audio"
)

// Source identifies where an asset originated.
type Source string

const (
	SourceUpload   Source = "upload"
	SourceBilibili Source = "bilibili"
	SourceYouTube  Source = "youtube"
	SourcePodcast  Source = "apple_podcast"
	SourceDerived  Source = "derived"
)

// Asset represents one piece of library media, keyed by content.
type Asset struct {
	ID            int64
	Kind          AssetKind
	DisplayName   string
	Source        Source
	ContentKey    string
	ContainerExt  string
	DurationMS    int64
	Width         int
	Height        int
	RawLang       string
	OriginalSRT   string
	TranslatedSRT string
	ThumbnailKey  string
	WaveformKey   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Queued    int
	Running   int
	Failed    int
	Completed int
	Canceled  int
}
