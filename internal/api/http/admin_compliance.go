package http

import (
	"net/http"
	"strconv"

	syncx "github.com/mind-engage/mindengage-results/internal/sync"
)

// GET /audit?q=&limit=        newest events whose type or key contains q
// GET /audit?since=<seq>      events after seq, oldest first (for tailing)
func AuditSearchHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if events == nil {
			http.Error(w, "audit log not configured", http.StatusNotImplemented)
			return
		}
		q := r.URL.Query()
		limit := parseIntDefault(q.Get("limit"), 100)

		var (
			out []syncx.Event
			err error
		)
		if s := q.Get("since"); s != "" {
			seq, perr := strconv.ParseInt(s, 10, 64)
			if perr != nil {
				http.Error(w, "since: not a sequence number", http.StatusBadRequest)
				return
			}
			out, err = events.Since(r.Context(), seq, limit)
		} else {
			out, err = events.Search(r.Context(), q.Get("q"), limit)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if out == nil {
			out = []syncx.Event{}
		}
		respondJSON(w, http.StatusOK, out)
	}
}
