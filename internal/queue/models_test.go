package queue

import "testing"

func TestLaneForKind(t *testing.T) {
	cases := map[Kind]Lane{
		KindIngestBilibili: LaneDownload,
		KindIngestYouTube:  LaneDownload,
		KindIngestPodcast:  LaneDownload,
		KindTranscribe:     LaneSubtitle,
		KindTranslateOnly:  LaneSubtitle,
		KindExportBurn:     LaneExport,
	}
	for kind, want := range cases {
		if got := LaneForKind(kind); got != want {
			t.Fatalf("LaneForKind(%s) = %s, want %s", kind, got, want)
		}
	}
}

func TestKindsForLane(t *testing.T) {
	kinds := KindsForLane(LaneDownload)
	if len(kinds) != 3 {
		t.Fatalf("expected 3 download kinds, got %v", kinds)
	}
	if got := KindsForLane(LaneExport); len(got) != 1 || got[0] != KindExportBurn {
		t.Fatalf("unexpected export kinds: %v", got)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Running "); !ok || status != StatusRunning {
		t.Fatalf("unexpected parse result: %v %v", status, ok)
	}
	if _, ok := ParseStatus("pending"); ok {
		t.Fatal("expected unknown status to fail")
	}
}

func TestRecomputeStatus(t *testing.T) {
	cases := []struct {
		name   string
		stages []Status
		want   Status
	}{
		{"all queued", []Status{StatusQueued, StatusQueued}, StatusQueued},
		{"running wins", []Status{StatusCompleted, StatusRunning, StatusQueued}, StatusRunning},
		{"failed after run", []Status{StatusCompleted, StatusFailed, StatusQueued}, StatusFailed},
		{"canceled", []Status{StatusCompleted, StatusCanceled}, StatusCanceled},
		{"skipped counts as done", []Status{StatusSkipped, StatusSkipped, StatusCompleted}, StatusCompleted},
		{"mixed queued", []Status{StatusCompleted, StatusQueued}, StatusQueued},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := &Job{}
			for i, status := range tc.stages {
				job.Stages = append(job.Stages, StageState{Name: string(rune('a' + i)), Status: status})
			}
			if got := job.RecomputeStatus(); got != tc.want {
				t.Fatalf("RecomputeStatus() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNextStageSkipsTerminal(t *testing.T) {
	job := &Job{Stages: []StageState{
		{Name: StageTranscribe, Status: StatusSkipped},
		{Name: StageOptimize, Status: StatusSkipped},
		{Name: StageTranslate, Status: StatusQueued},
	}}
	next := job.NextStage()
	if next == nil || next.Name != StageTranslate {
		t.Fatalf("unexpected next stage: %+v", next)
	}

	job.Stages[2].Status = StatusCompleted
	if job.NextStage() != nil {
		t.Fatal("expected no next stage")
	}
}

func TestPlanStagesTranslateFlag(t *testing.T) {
	withTranslate := PlanStages(KindTranscribe, true)
	if got := withTranslate[3].Status; got != StatusQueued {
		t.Fatalf("translate stage = %s, want queued", got)
	}

	withoutTranslate := PlanStages(KindTranscribe, false)
	if got := withoutTranslate[3].Status; got != StatusSkipped {
		t.Fatalf("translate stage = %s, want skipped", got)
	}

	translateOnly := PlanStages(KindTranslateOnly, false)
	if got := translateOnly[2].Status; got != StatusQueued {
		t.Fatalf("translate_only translate stage = %s, want queued", got)
	}
}
