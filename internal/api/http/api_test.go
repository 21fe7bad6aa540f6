package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
	"github.com/mind-engage/mindengage-results/internal/db"
	"github.com/mind-engage/mindengage-results/internal/grading"
	"github.com/mind-engage/mindengage-results/internal/rbac"
	"github.com/mind-engage/mindengage-results/internal/results"
	"github.com/mind-engage/mindengage-results/internal/storage"
	syncx "github.com/mind-engage/mindengage-results/internal/sync"
)

const marksCSV = "ID,Marks,Attendance,ESE_Marks\n1,82,90,40\n2,65,85,30\n3,45,80,AB\n4,32,76,10\n5,91,95,50\n"

type harness struct {
	srv   *httptest.Server
	auth  *auth.AuthService
	users *auth.Users
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	users := auth.NewUsers(conn, "admin", string(hash))
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	a := auth.NewAuthService("test-secret-0123456789", time.Hour)
	events := syncx.NewEventRepo(conn, "test")

	r := chi.NewRouter()
	Mount(r, Deps{
		Auth:    a,
		Users:   users,
		Service: results.NewService(results.NewSQLStore(conn), results.WithBlobStore(blobs), results.WithEvents(events)),
		Blobs:   blobs,
		Events:  events,
		DB:      conn,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, auth: a, users: users}
}

func (h *harness) login(t *testing.T, user, pw string) string {
	t.Helper()
	res, err := http.Post(h.srv.URL+"/auth/login", "application/json",
		strings.NewReader(`{"username":"`+user+`","password":"`+pw+`"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out.AccessToken
}

func (h *harness) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *http.Response {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func upload(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = fw.Write([]byte(content))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRunLifecycle(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "admin", "admin-pw")

	body, ct := upload(t, "MA101.csv", marksCSV, map[string]string{"course_type": "Theory", "total_max": "100", "credits": "4"})
	res := h.do(t, http.MethodPost, "/runs", tok, body, ct)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var run results.Run
	require.NoError(t, json.NewDecoder(res.Body).Decode(&run))
	require.Len(t, run.Semester.Batches, 1)
	assert.Equal(t, "MA101", run.Semester.Batches[0].Subject)
	assert.Equal(t, grading.Absolute, run.Semester.Batches[0].Boundaries.Method)
	assert.Equal(t, "admin", run.CreatedBy)

	res = h.do(t, http.MethodGet, "/runs/"+run.ID, tok, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = h.do(t, http.MethodGet, "/runs", tok, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var list []results.RunSummary
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, 5, list[0].Students)

	res = h.do(t, http.MethodGet, "/runs/"+run.ID+"/master.csv", tok, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	rows, err := csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"student_id", "MA101", "earned_credits", "sgpa", "failed_subjects", "graced_count"}, rows[0])
	assert.Equal(t, []string{"3", "Z", "0", "0.00", "MA101", "0"}, rows[3])

	res = h.do(t, http.MethodGet, "/runs/"+run.ID+"/master.xlsx", tok, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	f, err := excelize.OpenReader(res.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"Master", "Results", "Boundaries"}, f.GetSheetList())
	f.Close()

	res = h.do(t, http.MethodGet, "/runs/"+run.ID+"/results.csv", tok, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	rows, err = csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	res = h.do(t, http.MethodGet, "/runs/"+run.ID+"/upload", tok, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got bytes.Buffer
	_, _ = got.ReadFrom(res.Body)
	assert.Equal(t, marksCSV, got.String())

	res = h.do(t, http.MethodGet, "/runs/"+run.ID+"/master.pdf", tok, nil, "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res = h.do(t, http.MethodGet, "/runs/nope", tok, nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateRun_Errors(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "admin", "admin-pw")

	body, ct := upload(t, "bad.csv", "id,marks\n1,50\n", map[string]string{"total_max": "100"})
	res := h.do(t, http.MethodPost, "/runs", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	body, ct = upload(t, "x.csv", marksCSV, map[string]string{"total_max": "abc"})
	res = h.do(t, http.MethodPost, "/runs", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	body, ct = upload(t, "x.csv", marksCSV, map[string]string{"protocol": "curve", "total_max": "100"})
	res = h.do(t, http.MethodPost, "/runs", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	// ESE max above total max rejects the only subject
	body, ct = upload(t, "x.csv", marksCSV, map[string]string{"total_max": "100", "ese_max": "120"})
	res = h.do(t, http.MethodPost, "/runs", tok, body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	// no course fields and no catalog: nothing configures the subject
	body, ct = upload(t, "x.csv", marksCSV, nil)
	res = h.do(t, http.MethodPost, "/runs", tok, body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res = h.do(t, http.MethodPost, "/runs", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRunVisibilityAndRoles(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin-pw")

	res := h.do(t, http.MethodPost, "/users/bulk", admin,
		bytes.NewBufferString(`[{"username":"t1","role":"teacher","password":"pw1"},{"username":"t2","role":"teacher","password":"pw2"},{"username":"v","role":"viewer","password":"pw3"}]`),
		"application/json")
	require.Equal(t, http.StatusOK, res.StatusCode)

	t1, t2, viewer := h.login(t, "t1", "pw1"), h.login(t, "t2", "pw2"), h.login(t, "v", "pw3")

	body, ct := upload(t, "MA101.csv", marksCSV, map[string]string{"total_max": "100"})
	res = h.do(t, http.MethodPost, "/runs", t1, body, ct)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var run results.Run
	require.NoError(t, json.NewDecoder(res.Body).Decode(&run))

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/runs/"+run.ID, t1, nil, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/runs/"+run.ID, t2, nil, "").StatusCode)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/runs/"+run.ID, viewer, nil, "").StatusCode)

	var list []results.RunSummary
	require.NoError(t, json.NewDecoder(h.do(t, http.MethodGet, "/runs", t2, nil, "").Body).Decode(&list))
	assert.Empty(t, list)

	body, ct = upload(t, "MA101.csv", marksCSV, map[string]string{"total_max": "100"})
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, "/runs", viewer, body, ct).StatusCode)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/users", t1, nil, "").StatusCode)

	// demotion applies to tokens already issued
	_, err := h.users.Upsert(context.Background(), "t1", rbac.RoleViewer, "")
	require.NoError(t, err)
	body, ct = upload(t, "MA101.csv", marksCSV, map[string]string{"total_max": "100"})
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, "/runs", t1, body, ct).StatusCode)
}

func TestUserRoleAndPassword(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin-pw")

	res := h.do(t, http.MethodPost, "/users/bulk", admin,
		bytes.NewBufferString(`[{"username":"boss","role":"admin","password":"boss-pw"},{"username":"t1","role":"teacher","password":"t1-pw-old"}]`),
		"application/json")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = h.do(t, http.MethodPost, "/users/t1/role", admin, bytes.NewBufferString(`{"role":"Viewer"}`), "application/json")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var row auth.UserRow
	require.NoError(t, json.NewDecoder(res.Body).Decode(&row))
	assert.Equal(t, rbac.RoleViewer, row.Role)

	assert.Equal(t, http.StatusBadRequest,
		h.do(t, http.MethodPost, "/users/boss/role", admin, bytes.NewBufferString(`{"role":"teacher"}`), "application/json").StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		h.do(t, http.MethodPost, "/users/t1/role", admin, bytes.NewBufferString(`{"role":"student"}`), "application/json").StatusCode)
	assert.Equal(t, http.StatusNotFound,
		h.do(t, http.MethodPost, "/users/ghost/role", admin, bytes.NewBufferString(`{"role":"viewer"}`), "application/json").StatusCode)

	t1 := h.login(t, "t1", "t1-pw-old")
	assert.Equal(t, http.StatusForbidden,
		h.do(t, http.MethodPost, "/users/boss/role", t1, bytes.NewBufferString(`{"role":"viewer"}`), "application/json").StatusCode)
	assert.Equal(t, http.StatusForbidden,
		h.do(t, http.MethodPost, "/me/password", t1, bytes.NewBufferString(`{"old_password":"nope","new_password":"t1-pw-new"}`), "application/json").StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		h.do(t, http.MethodPost, "/me/password", t1, bytes.NewBufferString(`{"old_password":"t1-pw-old","new_password":"short"}`), "application/json").StatusCode)
	assert.Equal(t, http.StatusNoContent,
		h.do(t, http.MethodPost, "/me/password", t1, bytes.NewBufferString(`{"old_password":"t1-pw-old","new_password":"t1-pw-new"}`), "application/json").StatusCode)
	h.login(t, "t1", "t1-pw-new")

	// the configured admin has no stored row
	assert.Equal(t, http.StatusNotFound,
		h.do(t, http.MethodPost, "/me/password", admin, bytes.NewBufferString(`{"old_password":"admin-pw","new_password":"whatever-new"}`), "application/json").StatusCode)
}

func TestAuditSearch(t *testing.T) {
	h := newHarness(t)
	admin := h.login(t, "admin", "admin-pw")

	body, ct := upload(t, "MA101.csv", marksCSV, map[string]string{"total_max": "100"})
	res := h.do(t, http.MethodPost, "/runs", admin, body, ct)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var run results.Run
	require.NoError(t, json.NewDecoder(res.Body).Decode(&run))

	var found []syncx.Event
	res = h.do(t, http.MethodGet, "/audit?q="+run.ID, admin, nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&found))
	require.Len(t, found, 1)
	assert.Equal(t, syncx.EventRunGraded, found[0].Type)
	assert.Equal(t, "test", found[0].SiteID)

	var tail []syncx.Event
	res = h.do(t, http.MethodGet, "/audit?since=0", admin, nil, "")
	require.NoError(t, json.NewDecoder(res.Body).Decode(&tail))
	assert.Len(t, tail, 1)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/audit?since=x", admin, nil, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/audit", "", nil, "").StatusCode)
}

func TestTemplateAndProbes(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodGet, "/template.csv?mode=semester", "", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	rows, err := csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "subject_code", rows[0][1])
	assert.Len(t, rows, 11)

	res = h.do(t, http.MethodGet, "/template.csv", "", nil, "")
	rows, err = csv.NewReader(res.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "45", "80", "AB"}, rows[3])

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "", nil, "").StatusCode)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/readyz", "", nil, "").StatusCode)
}

func TestRunFormSheetOptions(t *testing.T) {
	f := runForm{CourseType: "practical", TotalMax: 50}
	opts := f.sheetOptions("uploads/LAB1.xlsx")
	assert.Equal(t, "LAB1", opts.Subject)
	require.NotNil(t, opts.Course)
	assert.Equal(t, grading.CourseConfig{TotalMax: 50, ESEMax: 30, Type: grading.Practical}, *opts.Course)

	assert.Nil(t, runForm{SubjectCode: "X"}.sheetOptions("a.csv").Course, "left to the catalog")

	only := runForm{TotalMax: 150}.sheetOptions("a.csv")
	require.NotNil(t, only.Course)
	assert.Equal(t, grading.CourseConfig{TotalMax: 150, ESEMax: 90, Type: grading.Theory}, *only.Course)
}
