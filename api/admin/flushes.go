package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/roamsync/core/roaming"
	"github.com/kilianp07/roamsync/infra/flushlog"
)

// ListFlushes serves the flush audit log. Supported query parameters are
// provider, kind, start and end (RFC3339) and failed.
func (s *Server) ListFlushes(w http.ResponseWriter, r *http.Request) {
	q := flushlog.Query{
		Provider: r.URL.Query().Get("provider"),
		Kind:     roaming.FlushKind(r.URL.Query().Get("kind")),
	}
	for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		if v := r.URL.Query().Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				http.Error(w, "invalid "+name, http.StatusBadRequest)
				return
			}
			*dst = t
		}
	}
	if v := r.URL.Query().Get("failed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid failed", http.StatusBadRequest)
			return
		}
		q.FailedOnly = b
	}
	records, err := s.flushes.Query(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []flushlog.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
