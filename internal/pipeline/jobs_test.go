package pipeline

import (
	"testing"
	"time"
)

func TestContentHashHex(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"hello world", []byte("hello world"), "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"empty", []byte{}, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentHashHex(tt.data); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
	if ContentHashHex([]byte("aaa")) == ContentHashHex([]byte("bbb")) {
		t.Error("expected different hashes for different inputs")
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("j1", "u1", []string{"a", "b"}, true)
	snap := job.Snapshot()
	if snap.Status != StatusQueued || snap.Phase != "queued" {
		t.Errorf("expected queued job, got %s/%s", snap.Status, snap.Phase)
	}
	if snap.Progress.Total != 2 || !snap.Force {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Progress.Errors == nil || snap.Outcomes == nil {
		t.Error("snapshot slices must be non-nil for JSON")
	}
}

func TestJob_SetStatusAdvancesUpdatedAt(t *testing.T) {
	job := NewJob("j1", "u1", []string{"a"}, false)
	before := job.Snapshot().UpdatedAt
	time.Sleep(time.Millisecond)
	job.SetStatus(StatusRunning, "generating")

	snap := job.Snapshot()
	if snap.Status != StatusRunning || snap.Phase != "generating" {
		t.Errorf("expected running/generating, got %s/%s", snap.Status, snap.Phase)
	}
	if !snap.UpdatedAt.After(before) {
		t.Error("expected UpdatedAt to advance")
	}
}

func TestJob_Finish(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     JobStatus
	}{
		{
			name: "all succeeded",
			outcomes: []Outcome{
				{DocumentID: "a", Status: OutcomeCompleted, NodeCount: 3},
				{DocumentID: "b", Status: OutcomeExists},
			},
			want: StatusCompleted,
		},
		{
			name: "some failed",
			outcomes: []Outcome{
				{DocumentID: "a", Status: OutcomeCompleted},
				{DocumentID: "b", Status: OutcomeFailed, Error: "boom"},
			},
			want: StatusPartial,
		},
		{
			name: "all failed",
			outcomes: []Outcome{
				{DocumentID: "a", Status: OutcomeIneligible, Error: "not pdf"},
				{DocumentID: "b", Status: OutcomeInProgress, Error: "busy"},
			},
			want: StatusFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("j", "u", []string{"a", "b"}, false)
			for _, o := range tt.outcomes {
				job.RecordOutcome(o)
			}
			job.Finish()
			snap := job.Snapshot()
			if snap.Status != tt.want || snap.Phase != "done" {
				t.Errorf("expected %s/done, got %s/%s", tt.want, snap.Status, snap.Phase)
			}
			if snap.Progress.Done != len(tt.outcomes) {
				t.Errorf("expected %d done, got %d", len(tt.outcomes), snap.Progress.Done)
			}
			if len(snap.Outcomes) != len(tt.outcomes) {
				t.Errorf("expected %d outcomes, got %d", len(tt.outcomes), len(snap.Outcomes))
			}
			if len(snap.Progress.Errors) != snap.Progress.Failed {
				t.Errorf("expected one error per failure, got %v", snap.Progress.Errors)
			}
		})
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("j", "u", nil, false)
	job.AddError("first")
	job.AddError("second")
	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 || snap.Progress.Errors[1] != "second" {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}

	snap.Progress.Errors[0] = "mutated"
	if job.Snapshot().Progress.Errors[0] != "first" {
		t.Error("snapshot must not alias job state")
	}
}

func TestOutcome_OK(t *testing.T) {
	for status, want := range map[OutcomeStatus]bool{
		OutcomeCompleted:  true,
		OutcomeExists:     true,
		OutcomeFailed:     false,
		OutcomeInProgress: false,
		OutcomeIneligible: false,
	} {
		if got := (Outcome{Status: status}).OK(); got != want {
			t.Errorf("%s: expected OK=%v", status, want)
		}
	}
}

func TestJobStore_Cleanup(t *testing.T) {
	s := NewJobStore(50 * time.Millisecond)
	old := NewJob("old", "u", nil, false)
	old.UpdatedAt = time.Now().Add(-time.Second)
	fresh := NewJob("fresh", "u", nil, false)
	s.Put(old)
	s.Put(fresh)

	s.Cleanup()
	if s.Get("old") != nil {
		t.Error("expected expired job to be evicted")
	}
	if s.Get("fresh") != fresh {
		t.Error("expected fresh job to remain")
	}
	if s.Get("missing") != nil {
		t.Error("expected nil for unknown job")
	}
}
