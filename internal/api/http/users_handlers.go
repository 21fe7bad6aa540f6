package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
)

type userRow struct {
	Username string `json:"username"`
	Role     string `json:"role"`               // teacher | viewer | admin
	Password string `json:"password,omitempty"` // plaintext, hashed on write
}

// POST /users/bulk  multipart file= (CSV or JSON) or a raw JSON array
func BulkUpsertUsersHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := requireFile(r, "file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer f.Close()
			b, err := io.ReadAll(f)
			if err != nil || len(strings.TrimSpace(string(b))) == 0 {
				http.Error(w, "empty file", http.StatusBadRequest)
				return
			}
			body := strings.TrimSpace(string(b))
			if body[0] == '[' {
				err = json.Unmarshal([]byte(body), &rows)
			} else {
				rows, err = parseUsersCSV(strings.NewReader(body))
			}
			if err != nil {
				http.Error(w, "bad file: "+err.Error(), http.StatusBadRequest)
				return
			}
		} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "expected JSON array or multipart file", http.StatusBadRequest)
			return
		}

		out := make([]auth.UserRow, 0, len(rows))
		for _, row := range rows {
			u, err := users.Upsert(r.Context(), strings.TrimSpace(row.Username), strings.ToLower(strings.TrimSpace(row.Role)), row.Password)
			if err != nil {
				st := http.StatusInternalServerError
				if errors.Is(err, auth.ErrUnknownRole) {
					st = http.StatusBadRequest
				}
				http.Error(w, row.Username+": "+err.Error(), st)
				return
			}
			out = append(out, u)
		}
		respondJSON(w, http.StatusOK, map[string]any{"upserted": len(out), "users": out})
	}
}

// GET /users
func ListUsersHandler(users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := users.List(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func parseUsersCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"username", "role"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{Username: rec[idx["username"]], Role: rec[idx["role"]]}
		if i, ok := idx["password"]; ok && i < len(rec) {
			row.Password = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func requireFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	f, h, err := r.FormFile(field)
	if err != nil {
		return nil, nil, errors.New("missing file field: " + field)
	}
	return f, h, nil
}
