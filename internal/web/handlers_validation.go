package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/rules"
	"github.com/go-chi/chi/v5"
)

const (
	defaultCriticalLimit = 100
	maxCriticalLimit     = 1000

	// maxRuleBody bounds rule request bodies.
	maxRuleBody = 64 << 10
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Rules.List(r.Context())
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if list == nil {
		list = []domain.Rule{}
	}
	writeJSON(w, map[string]any{"rules": list, "count": len(list)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	pattern := chi.URLParam(r, "pattern")

	rule, ok, err := s.deps.Rules.FindByPattern(r.Context(), pattern)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if !ok {
		s.respondError(w, r, fmt.Errorf("rule %s: %w", pattern, domain.ErrNotFound), nil)
		return
	}
	writeJSON(w, rule)
}

// handleUpsertRule creates or replaces the rule for the body's file_pattern.
func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	rule.FilePattern = strings.TrimSpace(rule.FilePattern)
	if err := rules.Check(&rule); err != nil {
		s.respondError(w, r, badRequest(err.Error()), nil)
		return
	}

	if err := s.deps.Rules.Upsert(r.Context(), &rule); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, rule)
}

// handleSetRuleEnabled toggles validation for a rule: {"enabled": bool}.
func (s *Server) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if body.Enabled == nil {
		s.respondError(w, r, badRequest("enabled is required"), nil)
		return
	}

	rule, err := s.deps.Rules.SetEnabled(r.Context(), chi.URLParam(r, "pattern"), *body.Enabled)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Rules.Delete(r.Context(), chi.URLParam(r, "pattern")); err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBatchReport returns the validation report of a batch.
func (s *Server) handleBatchReport(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	rep, err := s.deps.Reports.GenerateReport(r.Context(), batchID)
	if err != nil {
		s.respondError(w, r, err, &batchID)
		return
	}
	writeJSON(w, rep)
}

// handleBatchIssues lists the issues of a batch ordered by line number,
// optionally filtered by ?severity=.
func (s *Server) handleBatchIssues(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	var issues []domain.Issue
	if v := r.URL.Query().Get("severity"); v != "" {
		sev := domain.Severity(strings.ToUpper(v))
		if !sev.Valid() {
			s.respondError(w, r, badRequest("severity must be INFO, WARNING, ERROR or CRITICAL"), &batchID)
			return
		}
		issues, err = s.deps.Issues.FindByBatchAndSeverity(r.Context(), batchID, sev)
	} else {
		issues, err = s.deps.Issues.FindByBatch(r.Context(), batchID)
	}
	if err != nil {
		s.respondError(w, r, err, &batchID)
		return
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	writeJSON(w, map[string]any{"batch_id": batchID, "issues": issues, "count": len(issues)})
}

// handleBatchSummary counts a batch's issues per kind and severity.
func (s *Server) handleBatchSummary(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	summary, err := s.deps.Issues.Summary(r.Context(), batchID)
	if err != nil {
		s.respondError(w, r, err, &batchID)
		return
	}
	if summary == nil {
		summary = []domain.IssueSummary{}
	}
	writeJSON(w, map[string]any{"batch_id": batchID, "summary": summary})
}

// handleCriticalIssues lists the most recent CRITICAL issues.
func (s *Server) handleCriticalIssues(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", defaultCriticalLimit, maxCriticalLimit)

	issues, err := s.deps.Issues.FindCritical(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	writeJSON(w, map[string]any{"issues": issues, "count": len(issues)})
}

// decodeJSON decodes a bounded JSON body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRuleBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
