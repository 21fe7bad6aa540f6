package http

import (
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/mind-engage/mindengage-results/internal/results"
	"github.com/mind-engage/mindengage-results/internal/storage"
)

// GET /runs/{runID}/upload  returns the sheet exactly as it was uploaded
func GetUploadHandler(svc *results.Service, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(svc, w, r)
		if !ok {
			return
		}
		if bs == nil || run.BlobKey == "" {
			http.Error(w, "upload not archived", http.StatusNotFound)
			return
		}
		rc, err := bs.Get(run.BlobKey)
		if err != nil {
			st := http.StatusInternalServerError
			if errors.Is(err, storage.ErrNotFound) {
				st = http.StatusNotFound
			}
			http.Error(w, "upload: "+err.Error(), st)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(run.BlobKey)+`"`)
		_, _ = io.Copy(w, rc)
	}
}
