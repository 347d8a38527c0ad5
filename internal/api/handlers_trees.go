package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/pagetree/internal/pipeline"
	"github.com/dgallion1/pagetree/internal/store"
)

type generateRequest struct {
	DocumentIDs []string `json:"document_ids"`
	UserID      string   `json:"user_id"`
	Force       bool     `json:"force"`
	Wait        bool     `json:"wait"`
}

// handleGenerate builds trees for the requested documents. With wait set the
// per-document outcomes are returned; otherwise a job is queued.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 {
		jsonError(w, "document_ids is required", http.StatusBadRequest)
		return
	}

	if req.Wait {
		outcomes := s.orchestrator.GenerateNow(r.Context(), req.DocumentIDs, req.Force)
		writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
		return
	}

	job, err := s.orchestrator.Submit(req.UserID, req.DocumentIDs, req.Force)
	if errors.Is(err, pipeline.ErrQueueFull) {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   job.Snapshot().Status,
		"poll_url": fmt.Sprintf("/api/jobs/%s", job.ID),
	})
}

// handleTreeStatus reports a document's tree status. Documents never
// generated report pending.
func (s *Server) handleTreeStatus(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	g, err := s.store.GetTreeStatus(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, store.Generation{DocumentID: docID, Status: store.StatusPending})
		return
	}
	if err != nil {
		jsonError(w, "failed to read tree status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleGetTree returns a completed tree. skeleton=true drops node text and
// node=<id> narrows the response to that node's subtree.
func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	tree, err := s.store.GetTree(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "tree not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to load tree: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("skeleton") == "true" {
		tree = tree.Skeleton()
	}
	if nodeID := r.URL.Query().Get("node"); nodeID != "" {
		n := tree.Find(nodeID)
		if n == nil {
			jsonError(w, "node not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, n)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleListNodes returns a tree's nodes as flat rows in pre-order.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	nodes, err := s.store.ListNodes(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to load nodes: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(nodes) == 0 {
		jsonError(w, "tree not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"count":       len(nodes),
		"nodes":       nodes,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}
