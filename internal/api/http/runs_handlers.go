package http

import (
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
	"github.com/mind-engage/mindengage-results/internal/grading"
	"github.com/mind-engage/mindengage-results/internal/rbac"
	"github.com/mind-engage/mindengage-results/internal/results"
	"github.com/mind-engage/mindengage-results/internal/sheets"
)

var validate = validator.New()

// runForm is the multipart form of POST /runs. The course fields apply to single-subject sheets.
type runForm struct {
	Protocol    string
	Moderation  string
	SubjectCode string  `validate:"max=64"`
	CourseType  string  `validate:"omitempty,oneof=theory practical"`
	TotalMax    float64 `validate:"gte=0"`
	ESEMax      float64 `validate:"gte=0"`
	Credits     float64 `validate:"gte=0"`
}

func readRunForm(r *http.Request) (runForm, error) {
	f := runForm{
		Protocol:    r.FormValue("protocol"),
		Moderation:  r.FormValue("moderation"),
		SubjectCode: strings.TrimSpace(r.FormValue("subject_code")),
		CourseType:  strings.ToLower(strings.TrimSpace(r.FormValue("course_type"))),
	}
	for name, dst := range map[string]*float64{"total_max": &f.TotalMax, "ese_max": &f.ESEMax, "credits": &f.Credits} {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, &formError{field: name, msg: "not a number"}
		}
		*dst = n
	}
	if err := validate.Struct(f); err != nil {
		return f, &formError{msg: err.Error()}
	}
	return f, nil
}

type formError struct{ field, msg string }

func (e *formError) Error() string {
	if e.field == "" {
		return e.msg
	}
	return e.field + ": " + e.msg
}

func (f runForm) policy() (*grading.Policy, error) {
	var p grading.Policy
	var err error
	if f.Protocol != "" {
		if p.Protocol, err = grading.ParseProtocol(f.Protocol); err != nil {
			return nil, err
		}
	}
	if f.Moderation != "" {
		if p.Moderation, err = grading.ParseModeration(f.Moderation); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// sheetOptions builds the single-subject course from the form. With neither course_type nor
// total_max set it leaves Course nil, so the course catalog must supply the config or the
// subject is rejected. Otherwise a missing type means theory, a missing total means 100 and a
// missing ESE max takes the default share.
func (f runForm) sheetOptions(filename string) sheets.Options {
	opts := sheets.Options{Subject: f.SubjectCode, Credits: f.Credits}
	if opts.Subject == "" {
		opts.Subject = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	if f.CourseType == "" && f.TotalMax == 0 {
		return opts
	}
	cfg := grading.CourseConfig{Type: grading.Theory, TotalMax: f.TotalMax, ESEMax: f.ESEMax}
	if f.CourseType != "" {
		cfg.Type, _ = grading.ParseCourseType(f.CourseType)
	}
	if cfg.TotalMax == 0 {
		cfg.TotalMax = 100
	}
	if cfg.ESEMax == 0 {
		cfg.ESEMax = grading.DefaultESEMax(cfg.TotalMax)
	}
	opts.Course = &cfg
	return opts
}

// POST /runs  multipart: file + form fields
func CreateRunHandler(svc *results.Service, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			st := statusFor(err)
			if st == http.StatusInternalServerError {
				st = http.StatusBadRequest
			}
			http.Error(w, "bad multipart form: "+err.Error(), st)
			return
		}
		file, hdr, err := requireFile(r, "file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}

		form, err := readRunForm(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pol, err := form.policy()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		run, err := svc.Grade(r.Context(), results.GradeRequest{
			Source:    filepath.Base(hdr.Filename),
			Data:      data,
			Sheet:     form.sheetOptions(hdr.Filename),
			Policy:    pol,
			CreatedBy: auth.SubjectFromContext(r.Context()),
		})
		if err != nil {
			st := statusFor(err)
			if st == http.StatusInternalServerError {
				slog.Error("grade upload", "source", hdr.Filename, "err", err)
				http.Error(w, "grading failed", st)
				return
			}
			http.Error(w, err.Error(), st)
			return
		}
		respondJSON(w, http.StatusCreated, run)
	}
}

// GET /runs?limit=&offset=
func ListRunsHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := results.ListOpts{
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		}
		if opts.Offset < 0 {
			opts.Offset = 0
		}
		if !rbac.Can(r.Context(), rbac.PermRunViewAll) {
			opts.CreatedBy = auth.SubjectFromContext(r.Context())
		}
		out, err := svc.List(r.Context(), opts)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// loadRun fetches the run named in the URL. Runs owned by someone else look missing unless
// the caller may view all runs.
func loadRun(svc *results.Service, w http.ResponseWriter, r *http.Request) (results.Run, bool) {
	run, err := svc.Get(r.Context(), chi.URLParam(r, "runID"))
	if err == nil && !rbac.Can(r.Context(), rbac.PermRunViewAll) && run.CreatedBy != auth.SubjectFromContext(r.Context()) {
		err = results.ErrNotFound
	}
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return results.Run{}, false
	}
	return run, true
}

// GET /runs/{runID}
func GetRunHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(svc, w, r)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, run)
	}
}

// GET /runs/{runID}/master.{format}  format: csv | xlsx
func ExportMasterHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := chi.URLParam(r, "format")
		if format != "csv" && format != "xlsx" {
			http.Error(w, "format must be csv or xlsx", http.StatusBadRequest)
			return
		}
		run, ok := loadRun(svc, w, r)
		if !ok {
			return
		}
		sem := run.Semester
		if format == "csv" {
			writeCSV(w, "master_"+run.ID+".csv", sheets.MasterTable(sem))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="master_`+run.ID+`.xlsx"`)
		if err := sheets.WriteXLSX(w, sheets.MasterTable(sem), sheets.DetailTable(sem), sheets.BoundaryTable(sem)); err != nil {
			slog.Error("write xlsx", "run", run.ID, "err", err)
		}
	}
}

// GET /runs/{runID}/results.csv
func ExportResultsHandler(svc *results.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(svc, w, r)
		if !ok {
			return
		}
		writeCSV(w, "results_"+run.ID+".csv", sheets.DetailTable(run.Semester))
	}
}

// GET /template.{format}?mode=semester
func TemplateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layout := sheets.SingleSubject
		if strings.EqualFold(r.URL.Query().Get("mode"), "semester") {
			layout = sheets.Semester
		}
		t := sheets.TemplateTable(layout)
		switch chi.URLParam(r, "format") {
		case "csv":
			writeCSV(w, "marks_template.csv", t)
		case "xlsx":
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			w.Header().Set("Content-Disposition", `attachment; filename="marks_template.xlsx"`)
			if err := sheets.WriteXLSX(w, t); err != nil {
				slog.Error("write template", "err", err)
			}
		default:
			http.Error(w, "format must be csv or xlsx", http.StatusBadRequest)
		}
	}
}

func writeCSV(w http.ResponseWriter, filename string, t sheets.Table) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := sheets.WriteCSV(w, t); err != nil {
		slog.Error("write csv", "file", filename, "err", err)
	}
}
