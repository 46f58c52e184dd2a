// Package web provides HTTP handlers for the stageload API.
// This file contains shared helpers and the health, staging and dashboard
// handlers.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/logging"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/JonMunkholm/stageload/internal/web/views"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const healthTimeout = 2 * time.Second

const dashboardRecent = 20

// parseIntParam parses a positive integer query parameter, falling back to
// defaultVal and capping at maxVal.
func parseIntParam(r *http.Request, name string, defaultVal, maxVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	if i > maxVal {
		return maxVal
	}
	return i
}

// parseBatchID reads the {batchID} path parameter.
func parseBatchID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "batchID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest(fmt.Sprintf("invalid batch id %q", raw))
	}
	return id, nil
}

// handleHealth reports database reachability and ingest slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"database": "ok",
		"ingests":  s.deps.Limiter.Status(),
	}

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			body["status"] = "degraded"
			body["database"] = "unreachable"
			writeJSONStatus(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, body)
}

// handleStagingTables lists staging tables with estimated row counts.
// ?prefix= overrides the configured prefixes.
func (s *Server) handleStagingTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.stagingTables(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, map[string]any{"tables": tables, "count": len(tables)})
}

// stagingTables lists tables under prefix, or under the naming and routing
// prefixes when prefix is empty.
func (s *Server) stagingTables(ctx context.Context, prefix string) ([]schema.StagingTable, error) {
	prefixes := []string{prefix}
	if prefix == "" {
		prefixes = []string{s.cfg.Naming.Prefix}
		if s.cfg.Routing.Enabled && s.cfg.Routing.Prefix != "" && s.cfg.Routing.Prefix != s.cfg.Naming.Prefix {
			prefixes = append(prefixes, s.cfg.Routing.Prefix)
		}
	}

	seen := make(map[string]bool)
	tables := []schema.StagingTable{}
	for _, p := range prefixes {
		list, err := s.deps.Tables.ListStagingTables(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, t := range list {
			if !seen[t.Name] {
				seen[t.Name] = true
				tables = append(tables, t)
			}
		}
	}
	return tables, nil
}

// handleDashboard renders the overview page. Sections whose data cannot be
// loaded are left empty.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)
	data := views.DashboardData{
		GeneratedAt: time.Now(),
		Ingests:     s.deps.Limiter.Status(),
	}

	if stats, err := s.deps.Manifests.Stats(ctx); err == nil {
		data.Stats = stats
	} else {
		logger.Warn("dashboard stats", "error", err)
	}
	if recent, err := s.deps.Manifests.List(ctx, domain.ManifestFilter{Limit: dashboardRecent}); err == nil {
		data.Recent = recent
	} else {
		logger.Warn("dashboard manifests", "error", err)
	}
	if tables, err := s.stagingTables(ctx, ""); err == nil {
		data.Tables = tables
	} else {
		logger.Warn("dashboard staging tables", "error", err)
	}
	if s.deps.Watch != nil {
		st := s.deps.Watch.Status()
		data.Watch = &st
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Dashboard(data).Render(ctx, w); err != nil {
		logger.Error("render dashboard", "error", err)
	}
}
