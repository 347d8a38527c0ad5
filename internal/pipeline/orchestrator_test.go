package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/pagetree/internal/config"
	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/store"
)

type fakeBuilder struct {
	calls   atomic.Int32
	fail    map[string]error
	started chan string
	release chan struct{}
}

func (b *fakeBuilder) BuildDocument(ctx context.Context, doc *store.Document) (*doctree.DocumentTree, error) {
	b.calls.Add(1)
	if b.started != nil {
		b.started <- doc.ID
	}
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := b.fail[doc.ID]; err != nil {
		return nil, err
	}
	roots := doctree.Build([]doctree.TocEntry{
		{StructurePath: "1", Title: "Intro", PhysicalIndex: 1},
		{StructurePath: "2", Title: "Body", PhysicalIndex: 2},
	}, 3)
	return &doctree.DocumentTree{DocName: doc.Filename, DocDescription: "d", Roots: roots}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		WorkerCount:           1,
		MaxQueueSize:          4,
		MaxConcurrentGenerate: 2,
		JobTTL:                time.Hour,
		StaleProcessingAfter:  time.Hour,
	}
}

type harness struct {
	store   *store.Store
	builder *fakeBuilder
	orch    *Orchestrator
	dir     string
}

func newHarness(t *testing.T, b *fakeBuilder) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "pagetree.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	o := NewOrchestrator(testConfig(), st, b, testLogger())
	t.Cleanup(o.Stop)
	return &harness{store: st, builder: b, orch: o, dir: dir}
}

func (h *harness) addDocument(t *testing.T, id, filename, fileType string, writeFile bool) {
	t.Helper()
	path := filepath.Join(h.dir, filename)
	if writeFile {
		if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	doc := &store.Document{ID: id, UserID: "u1", Filename: filename, FilePath: path, FileType: fileType}
	if err := h.store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
}

func TestGenerateNow_CompletesAndPersists(t *testing.T) {
	h := newHarness(t, &fakeBuilder{})
	h.addDocument(t, "d1", "a.pdf", "pdf", true)
	ctx := context.Background()

	out := h.orch.GenerateNow(ctx, []string{"d1"}, false)
	if len(out) != 1 || out[0].Status != OutcomeCompleted || out[0].NodeCount != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	tree, err := h.store.GetTree(ctx, "d1")
	if err != nil || tree.NodeCount() != 2 {
		t.Fatalf("expected stored tree, got %v %v", tree, err)
	}

	again := h.orch.GenerateNow(ctx, []string{"d1"}, false)
	if again[0].Status != OutcomeExists {
		t.Errorf("expected exists on second request, got %+v", again[0])
	}
	if h.builder.calls.Load() != 1 {
		t.Errorf("expected a single build, got %d", h.builder.calls.Load())
	}

	forced := h.orch.GenerateNow(ctx, []string{"d1"}, true)
	if forced[0].Status != OutcomeCompleted || h.builder.calls.Load() != 2 {
		t.Errorf("expected forced regeneration, got %+v after %d builds", forced[0], h.builder.calls.Load())
	}
}

func TestGenerateNow_Ineligible(t *testing.T) {
	h := newHarness(t, &fakeBuilder{})
	h.addDocument(t, "txt", "notes.txt", "txt", true)
	h.addDocument(t, "gone", "missing.pdf", "pdf", false)

	out := h.orch.GenerateNow(context.Background(), []string{"txt", "gone", "unknown"}, false)
	for _, o := range out {
		if o.Status != OutcomeIneligible {
			t.Errorf("%s: expected ineligible, got %+v", o.DocumentID, o)
		}
	}
	if h.builder.calls.Load() != 0 {
		t.Error("ineligible documents must not be built")
	}
	if _, err := h.store.GetTreeStatus(context.Background(), "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ineligible documents must not get a status record, got %v", err)
	}
}

func TestGenerateNow_FailureRecorded(t *testing.T) {
	h := newHarness(t, &fakeBuilder{fail: map[string]error{"bad": errors.New("corrupt pdf")}})
	h.addDocument(t, "bad", "bad.pdf", "pdf", true)
	h.addDocument(t, "good", "good.pdf", "pdf", true)
	ctx := context.Background()

	out := h.orch.GenerateNow(ctx, []string{"bad", "good"}, false)
	if out[0].Status != OutcomeFailed || out[0].Error != "corrupt pdf" {
		t.Errorf("unexpected outcome for bad: %+v", out[0])
	}
	if out[1].Status != OutcomeCompleted {
		t.Errorf("one failure must not affect the other document: %+v", out[1])
	}

	g, err := h.store.GetTreeStatus(ctx, "bad")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if g.Status != store.StatusFailed || g.ErrorMessage != "corrupt pdf" {
		t.Errorf("expected failed record, got %+v", g)
	}

	errs := h.orch.EnsureTrees(ctx, []string{"good", "bad"})
	if _, ok := errs["good"]; ok {
		t.Error("good document should have no error")
	}
	if errs["bad"] == nil {
		t.Error("bad document should report an error")
	}
}

func TestGenerateNow_DuplicateRequestInProgress(t *testing.T) {
	b := &fakeBuilder{started: make(chan string, 1), release: make(chan struct{})}
	h := newHarness(t, b)
	h.addDocument(t, "d1", "a.pdf", "pdf", true)

	var wg sync.WaitGroup
	var first []Outcome
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = h.orch.GenerateNow(context.Background(), []string{"d1"}, false)
	}()

	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("builder never started")
	}

	second := h.orch.GenerateNow(context.Background(), []string{"d1"}, false)
	if second[0].Status != OutcomeInProgress {
		t.Errorf("expected in_progress for concurrent request, got %+v", second[0])
	}

	close(b.release)
	wg.Wait()
	if first[0].Status != OutcomeCompleted {
		t.Errorf("expected first request to complete, got %+v", first[0])
	}
}

func TestGenerateNow_StoreClaimHeldElsewhere(t *testing.T) {
	h := newHarness(t, &fakeBuilder{})
	h.addDocument(t, "d1", "a.pdf", "pdf", true)
	ctx := context.Background()
	if err := h.store.MarkStatus(ctx, "d1", store.StatusProcessing, ""); err != nil {
		t.Fatalf("mark: %v", err)
	}

	out := h.orch.GenerateNow(ctx, []string{"d1"}, false)
	if out[0].Status != OutcomeInProgress {
		t.Errorf("expected in_progress while another process holds the claim, got %+v", out[0])
	}
}

func TestGenerateNow_CallerGivesUpWorkContinues(t *testing.T) {
	b := &fakeBuilder{started: make(chan string, 1), release: make(chan struct{})}
	h := newHarness(t, b)
	h.addDocument(t, "d1", "a.pdf", "pdf", true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-b.started
		cancel()
	}()
	out := h.orch.GenerateNow(ctx, []string{"d1"}, false)
	if out[0].Status != OutcomeInProgress {
		t.Errorf("expected in_progress after caller cancel, got %+v", out[0])
	}

	close(b.release)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := h.store.StatusOf(context.Background(), "d1"); st == store.StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("background generation did not complete")
}

func TestSubmit_RunsJob(t *testing.T) {
	h := newHarness(t, &fakeBuilder{fail: map[string]error{"bad": errors.New("boom")}})
	h.addDocument(t, "good", "good.pdf", "pdf", true)
	h.addDocument(t, "bad", "bad.pdf", "pdf", true)
	h.orch.Start()

	job, err := h.orch.Submit("u1", []string{"good", "bad"}, false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if h.orch.GetJob(job.ID) != job {
		t.Fatal("expected job to be registered")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := job.Snapshot(); snap.Phase == "done" {
			if snap.Status != StatusPartial || snap.Progress.Succeeded != 1 || snap.Progress.Failed != 1 {
				t.Errorf("unexpected job state %+v", snap)
			}
			if len(snap.Outcomes) != 2 || len(snap.Progress.Errors) != 1 {
				t.Errorf("expected 2 outcomes and 1 error, got %+v", snap)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
}

func TestSubmit_QueueFull(t *testing.T) {
	h := newHarness(t, &fakeBuilder{})
	for range 4 {
		if _, err := h.orch.Submit("u1", []string{"x"}, false); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	job, err := h.orch.Submit("u1", []string{"x"}, false)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %s", snap.Status)
	}
	if len(snap.Progress.Errors) != 1 || !strings.Contains(snap.Progress.Errors[0], ErrQueueFull.Error()) {
		t.Errorf("expected the queue error on the job, got %v", snap.Progress.Errors)
	}
}
