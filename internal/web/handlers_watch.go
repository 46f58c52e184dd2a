package web

import (
	"net/http"

	"github.com/JonMunkholm/stageload/internal/watch"
	"github.com/go-chi/chi/v5"
)

// handleWatchStatus reports folder counts and worker state. A disabled
// watch folder reports enabled=false instead of an error.
func (s *Server) handleWatchStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		writeJSON(w, watch.Status{
			Root:     s.cfg.Watch.Root,
			Counts:   map[string]int{},
			InFlight: []string{},
		})
		return
	}
	writeJSON(w, s.deps.Watch.Status())
}

func (s *Server) handleWatchFiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, r, errWatchDisabled, nil)
		return
	}

	folder := chi.URLParam(r, "folder")
	files, err := s.deps.Watch.ListFiles(folder)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	if files == nil {
		files = []watch.FileInfo{}
	}
	writeJSON(w, map[string]any{"folder": folder, "files": files, "count": len(files)})
}

// handleWatchRetry moves a failed file back to the upload folder.
func (s *Server) handleWatchRetry(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, r, errWatchDisabled, nil)
		return
	}

	name := chi.URLParam(r, "filename")
	queued, err := s.deps.Watch.Retry(name)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"file": name, "queued_as": queued})
}
