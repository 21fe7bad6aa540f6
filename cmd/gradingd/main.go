package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	api "github.com/mind-engage/mindengage-results/internal/api/http"
	auth "github.com/mind-engage/mindengage-results/internal/auth/middleware"
	"github.com/mind-engage/mindengage-results/internal/config"
	"github.com/mind-engage/mindengage-results/internal/db"
	"github.com/mind-engage/mindengage-results/internal/logging"
	"github.com/mind-engage/mindengage-results/internal/results"
	"github.com/mind-engage/mindengage-results/internal/sheets"
	storage "github.com/mind-engage/mindengage-results/internal/storage"
	syncx "github.com/mind-engage/mindengage-results/internal/sync"
)

func main() {
	cfg, err := config.FromEnv()
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log := logging.New("gradingd")
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return err
	}

	events := syncx.NewEventRepo(dbh, cfg.SiteID)
	svcOpts := []results.Option{
		results.WithBlobStore(bs),
		results.WithEvents(events),
		results.WithPolicy(cfg.Policy()),
		results.WithWorkers(cfg.Workers),
		results.WithLogger(logging.New("results")),
	}
	if cfg.CourseCatalog != "" {
		cat, err := sheets.LoadCatalog(cfg.CourseCatalog)
		if err != nil {
			return err
		}
		log.Info("course catalog loaded", "path", cfg.CourseCatalog, "courses", len(cat.Courses))
		svcOpts = append(svcOpts, results.WithCatalog(cat))
	}
	svc := results.NewService(results.NewSQLStore(dbh), svcOpts...)

	if cfg.AdminPassHash == "" {
		log.Warn("ADMIN_PASS_HASH not set; only users in the database can log in")
	}
	users := auth.NewUsers(dbh, cfg.AdminUser, cfg.AdminPassHash)
	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, api.Deps{
		Auth:           authSvc,
		Users:          users,
		Service:        svc,
		Blobs:          bs,
		Events:         events,
		DB:             dbh,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver,
			"protocol", cfg.Protocol, "moderation", cfg.Moderation, "workers", cfg.Workers)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShut()
	return srv.Shutdown(shutCtx)
}
