package stats

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/haulwatch/haulwatch-stack/common/httputil"
)

// Reader is the read side of Client.
type Reader interface {
	Get(ctx context.Context, eventType string) (*Stats, error)
	ListActive(ctx context.Context, since time.Duration) ([]string, error)
}

// Handler serves GET /stats. Repeated ?type= parameters select event types;
// without them every type seen in the last 24 hours is reported.
func Handler(r Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			httputil.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
			return
		}

		types := req.URL.Query()["type"]
		if len(types) == 0 {
			active, err := r.ListActive(req.Context(), 24*time.Hour)
			if err != nil {
				httputil.WriteError(w, http.StatusServiceUnavailable, "stats_unavailable", "")
				return
			}
			types = active
		}
		sort.Strings(types)

		out := make([]*Stats, 0, len(types))
		for _, t := range types {
			s, err := r.Get(req.Context(), t)
			if err != nil {
				httputil.WriteError(w, http.StatusServiceUnavailable, "stats_unavailable", "")
				return
			}
			out = append(out, s)
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{"event_types": out})
	}
}
