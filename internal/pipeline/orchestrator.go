package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/pagetree/internal/config"
	"github.com/dgallion1/pagetree/internal/doctree"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/store"
)

var (
	// ErrInProgress is returned when another generation holds the document.
	ErrInProgress = errors.New("tree generation already in progress")
	// ErrIneligible is returned for documents that cannot get a tree.
	ErrIneligible = errors.New("document not eligible for tree generation")
	// ErrQueueFull is returned by Submit when the worker queue is full.
	ErrQueueFull = errors.New("job queue is full")
)

// TreeBuilder produces an enriched tree for a catalog document.
type TreeBuilder interface {
	BuildDocument(ctx context.Context, doc *store.Document) (*doctree.DocumentTree, error)
}

// Orchestrator decides which documents need a tree and generates them,
// either synchronously or through a bounded job queue.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	store   *store.Store
	builder TreeBuilder
	log     *slog.Logger
	cfg     config.Config

	mu       sync.Mutex
	inflight map[string]bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to run queued jobs.
func NewOrchestrator(cfg config.Config, st *store.Store, builder TreeBuilder, log *slog.Logger) *Orchestrator {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		store:    st,
		builder:  builder,
		log:      log,
		cfg:      cfg,
		inflight: make(map[string]bool),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start() {
	for range max(o.cfg.WorkerCount, 1) {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-o.baseCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(job)
				}
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-o.baseCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop cancels in-flight generation and waits for workers to exit.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}

// Submit queues a deferred generation job and returns immediately.
func (o *Orchestrator) Submit(userID string, docIDs []string, force bool) (*Job, error) {
	job := NewJob(uuid.NewString(), userID, docIDs, force)
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		return job, nil
	default:
		err := fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "queue_full")
		return job, err
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

func (o *Orchestrator) process(job *Job) {
	log := o.log.With("job_id", job.ID, "user_id", job.UserID)
	job.SetStatus(StatusRunning, "generating")
	log.Info("job started", "documents", len(job.DocumentIDs))

	o.runBatch(o.baseCtx, job.DocumentIDs, job.Force, job.RecordOutcome)
	job.Finish()

	snap := job.Snapshot()
	log.Info("job finished", "status", snap.Status, "succeeded", snap.Progress.Succeeded, "failed", snap.Progress.Failed)
}

// GenerateNow generates trees for docIDs and waits for the outcomes. The
// work runs on the orchestrator's context, so a caller that gives up early
// gets in_progress outcomes while generation carries on.
func (o *Orchestrator) GenerateNow(ctx context.Context, docIDs []string, force bool) []Outcome {
	var (
		mu       sync.Mutex
		outcomes = make(map[string]Outcome, len(docIDs))
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.runBatch(o.baseCtx, docIDs, force, func(out Outcome) {
			mu.Lock()
			outcomes[out.DocumentID] = out
			mu.Unlock()
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	result := make([]Outcome, len(docIDs))
	for i, id := range docIDs {
		if out, ok := outcomes[id]; ok {
			result[i] = out
		} else {
			result[i] = Outcome{DocumentID: id, Status: OutcomeInProgress, Error: ErrInProgress.Error()}
		}
	}
	return result
}

// EnsureTrees generates any missing trees and returns an error for each
// document still without one.
func (o *Orchestrator) EnsureTrees(ctx context.Context, docIDs []string) map[string]error {
	errs := make(map[string]error)
	for _, out := range o.GenerateNow(ctx, docIDs, false) {
		if !out.OK() {
			errs[out.DocumentID] = errors.New(out.Error)
		}
	}
	return errs
}

func (o *Orchestrator) runBatch(ctx context.Context, docIDs []string, force bool, record func(Outcome)) {
	var eg errgroup.Group
	eg.SetLimit(max(o.cfg.MaxConcurrentGenerate, 1))
	seen := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		eg.Go(func() error {
			record(o.generateOne(ctx, id, force))
			return nil
		})
	}
	_ = eg.Wait()
}

// generateOne drives a single document from claim to stored tree. Failures
// are recorded on the document's status and never propagate.
func (o *Orchestrator) generateOne(ctx context.Context, docID string, force bool) Outcome {
	log := o.log.With("doc_id", docID)
	fail := func(status OutcomeStatus, err error) Outcome {
		return Outcome{DocumentID: docID, Status: status, Error: err.Error()}
	}

	doc, err := o.checkEligible(ctx, docID)
	if err != nil {
		log.Warn("document not eligible", "error", err)
		return fail(OutcomeIneligible, err)
	}

	if !o.acquire(docID) {
		return fail(OutcomeInProgress, ErrInProgress)
	}
	defer o.release(docID)

	if force {
		if err := o.store.ResetTree(ctx, docID); err != nil {
			return fail(OutcomeFailed, err)
		}
	}

	claimed, err := o.store.ClaimGeneration(ctx, docID, o.cfg.StaleProcessingAfter)
	if err != nil {
		return fail(OutcomeFailed, err)
	}
	if !claimed {
		status, err := o.store.StatusOf(ctx, docID)
		if err != nil {
			return fail(OutcomeFailed, err)
		}
		if status == store.StatusCompleted {
			return Outcome{DocumentID: docID, Status: OutcomeExists}
		}
		return fail(OutcomeInProgress, ErrInProgress)
	}

	start := time.Now()
	log.Info("tree generation started", "filename", doc.Filename)

	tree, err := o.builder.BuildDocument(ctx, doc)
	if err == nil {
		err = o.store.StoreTree(ctx, docID, tree)
	}
	if err != nil {
		log.Error("tree generation failed", "error", err, "duration", time.Since(start))
		if markErr := o.store.MarkStatus(context.WithoutCancel(ctx), docID, store.StatusFailed, err.Error()); markErr != nil {
			log.Error("record failure", "error", markErr)
		}
		return fail(OutcomeFailed, err)
	}

	nodes := tree.NodeCount()
	log.Info("tree generation completed", "nodes", nodes, "duration", time.Since(start))
	return Outcome{DocumentID: docID, Status: OutcomeCompleted, NodeCount: nodes}
}

func (o *Orchestrator) checkEligible(ctx context.Context, docID string) (*store.Document, error) {
	doc, err := o.store.GetDocument(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %s not found", ErrIneligible, docID)
	}
	if err != nil {
		return nil, err
	}
	if doc.FileType != "pdf" || !parser.IsSupportedExtension(doc.Filename) {
		return nil, fmt.Errorf("%w: file type %q is not pdf", ErrIneligible, doc.FileType)
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		return nil, fmt.Errorf("%w: source file missing", ErrIneligible)
	}
	return doc, nil
}

func (o *Orchestrator) acquire(docID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[docID] {
		return false
	}
	o.inflight[docID] = true
	return true
}

func (o *Orchestrator) release(docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, docID)
}
