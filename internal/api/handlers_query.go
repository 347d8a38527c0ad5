package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgallion1/pagetree/internal/search"
)

type queryRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids"`
	UserID      string   `json:"user_id"`
}

type queryResponse struct {
	*search.Result
	AnswerHTML string `json:"answer_html"`
}

// handleQuery answers a question from the named documents, or from all of
// the user's documents when none are named.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 && req.UserID == "" {
		jsonError(w, "document_ids or user_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	result, err := s.reasoner.Query(ctx, req.Query, req.DocumentIDs, req.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error("query failed", "error", err)
		jsonError(w, "query failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Result: result, AnswerHTML: s.renderMarkdown(result.Answer)})
}

func (s *Server) renderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(md), &buf); err != nil {
		s.log.Warn("render answer", "error", err)
		return ""
	}
	return buf.String()
}
