package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/stageload/internal/core"
)

const maxSubmitterLength = 100

// withSubmitter records who submitted a request for the manifest's
// created_by. X-Submitted-By wins; otherwise the submitter is "api".
func withSubmitter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.Header.Get("X-Submitted-By"))
		if name == "" {
			name = "api"
		}
		if len(name) > maxSubmitterLength {
			name = name[:maxSubmitterLength]
		}
		next.ServeHTTP(w, r.WithContext(core.WithSubmitter(r.Context(), name)))
	})
}
