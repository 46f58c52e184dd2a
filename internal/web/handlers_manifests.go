package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/stageload/internal/domain"
)

const (
	defaultManifestLimit = 50
	maxManifestLimit     = 500
)

// handleListManifests lists manifests, newest first, optionally filtered by
// ?status= and bounded by ?limit=.
func (s *Server) handleListManifests(w http.ResponseWriter, r *http.Request) {
	filter := domain.ManifestFilter{
		Limit: parseIntParam(r, "limit", defaultManifestLimit, maxManifestLimit),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = domain.Status(strings.ToUpper(v))
		if !filter.Status.Valid() {
			s.respondError(w, r, badRequest("status must be PENDING, PROCESSING, COMPLETED or FAILED"), nil)
			return
		}
	}

	list, err := s.deps.Manifests.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if list == nil {
		list = []domain.Manifest{}
	}
	writeJSON(w, map[string]any{"manifests": list, "count": len(list)})
}

func (s *Server) handleManifestStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Manifests.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	m, err := s.deps.Manifests.FindByBatchID(r.Context(), batchID)
	if err != nil {
		s.respondError(w, r, err, &batchID)
		return
	}
	writeJSON(w, m)
}

// handleManifestChildren lists the member manifests of an archive batch.
func (s *Server) handleManifestChildren(w http.ResponseWriter, r *http.Request) {
	batchID, err := parseBatchID(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	if _, err := s.deps.Manifests.FindByBatchID(r.Context(), batchID); err != nil {
		s.respondError(w, r, err, &batchID)
		return
	}
	children, err := s.deps.Manifests.FindByParent(r.Context(), batchID)
	if err != nil {
		s.respondError(w, r, err, &batchID)
		return
	}
	if children == nil {
		children = []domain.Manifest{}
	}
	writeJSON(w, map[string]any{"parent_batch_id": batchID, "children": children, "count": len(children)})
}
