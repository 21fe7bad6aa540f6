package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
	"github.com/mind-engage/mindengage-results/internal/rbac"
	"github.com/mind-engage/mindengage-results/internal/results"
	"github.com/mind-engage/mindengage-results/internal/storage"
	syncx "github.com/mind-engage/mindengage-results/internal/sync"
)

type Deps struct {
	Auth           *auth.AuthService
	Users          *auth.Users
	Service        *results.Service
	Blobs          storage.BlobStore
	Events         *syncx.EventRepo // may be nil
	DB             *sql.DB          // for readiness; may be nil
	MaxUploadBytes int64
}

// Mount registers the API on r. Everything except login, templates and probes needs a token.
func Mount(r chi.Router, d Deps) {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}

	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))
	r.Get("/template.{format}", TemplateHandler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	// Protected API (JWT → role from DB → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth), auth.AttachRoleFromDB(d.Users))

		pr.With(rbac.Require(rbac.PermRunCreate)).
			Post("/runs", CreateRunHandler(d.Service, d.MaxUploadBytes))
		pr.With(rbac.Require(rbac.PermRunView)).
			Get("/runs", ListRunsHandler(d.Service))
		pr.With(rbac.Require(rbac.PermRunView)).
			Get("/runs/{runID}", GetRunHandler(d.Service))

		pr.With(rbac.Require(rbac.PermRunExport)).
			Get("/runs/{runID}/master.{format}", ExportMasterHandler(d.Service))
		pr.With(rbac.Require(rbac.PermRunExport)).
			Get("/runs/{runID}/results.csv", ExportResultsHandler(d.Service))
		pr.With(rbac.Require(rbac.PermRunExport)).
			Get("/runs/{runID}/upload", GetUploadHandler(d.Service, d.Blobs))

		pr.With(rbac.Require(rbac.PermUsersUpsert)).
			Post("/users/bulk", BulkUpsertUsersHandler(d.Users))
		pr.With(rbac.Require(rbac.PermUsersList)).
			Get("/users", ListUsersHandler(d.Users))
		pr.With(rbac.Require(rbac.PermUsersRole)).
			Post("/users/{userID}/role", UpdateUserRoleHandler(d.Users))

		pr.With(rbac.Require(rbac.PermAuditView)).
			Get("/audit", AuditSearchHandler(d.Events))

		pr.Post("/me/password", ChangePasswordHandler(d.Users))
	})
}
