package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/pipeline"
	"github.com/dgallion1/pagetree/internal/store"
)

type uploadResponse struct {
	*store.Document
	Duplicate bool   `json:"duplicate,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	PollURL   string `json:"poll_url,omitempty"`
}

type documentView struct {
	store.Document
	TreeStatus store.Status `json:"tree_status"`
}

// handleUpload stores an uploaded PDF and registers it in the catalog. An
// identical file already uploaded by the same user is returned as is.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	userID := r.FormValue("user_id")
	if userID == "" {
		jsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	ctx := r.Context()
	hash := pipeline.ContentHashHex(data)
	existing, err := s.store.FindDocumentByHash(ctx, userID, hash)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, uploadResponse{Document: existing, Duplicate: true})
		return
	case !errors.Is(err, store.ErrNotFound):
		s.log.Error("find document by hash", "error", err)
		jsonError(w, "failed to check for duplicates", http.StatusInternalServerError)
		return
	}

	docID := uuid.NewString()
	dir := filepath.Join(s.cfg.StorageDir, sanitizeFilename(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error("create storage dir", "dir", dir, "error", err)
		jsonError(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	path := filepath.Join(dir, docID+strings.ToLower(filepath.Ext(filename)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Error("write upload", "path", path, "error", err)
		jsonError(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		if ext, err := parser.ForFile(filename, false); err == nil {
			title = ext.Title(data, filename)
		}
	}

	doc := &store.Document{
		ID:          docID,
		UserID:      userID,
		Filename:    filename,
		FilePath:    path,
		FileType:    parser.FileType(filename),
		Title:       title,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		os.Remove(path)
		s.log.Error("create document", "error", err)
		jsonError(w, "failed to record document", http.StatusInternalServerError)
		return
	}
	s.log.Info("document uploaded", "doc_id", docID, "user_id", userID, "bytes", len(data))

	resp := uploadResponse{Document: doc}
	if r.FormValue("generate") == "true" {
		job, err := s.orchestrator.Submit(userID, []string{docID}, false)
		if err != nil {
			s.log.Warn("queue tree generation", "doc_id", docID, "error", err)
		} else {
			resp.JobID = job.ID
			resp.PollURL = fmt.Sprintf("/api/jobs/%s", job.ID)
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleListDocuments lists a user's documents with their tree status.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		status, err := s.store.StatusOf(ctx, d.ID)
		if err != nil {
			jsonError(w, "failed to read tree status: "+err.Error(), http.StatusInternalServerError)
			return
		}
		views = append(views, documentView{Document: d, TreeStatus: status})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": views})
}

// handleDeleteDocument removes a document, its tree and its stored file.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		jsonError(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	doc, err := s.store.GetDocument(ctx, docID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && doc.UserID != userID) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to load document: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err := s.store.DeleteDocument(ctx, docID); err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	fileDeleted := true
	if err := os.Remove(doc.FilePath); err != nil {
		fileDeleted = false
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("remove stored file", "doc_id", docID, "path", doc.FilePath, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":  docID,
		"deleted":      true,
		"file_deleted": fileDeleted,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
