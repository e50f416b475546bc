package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/krce-idcs/qpgen/internal/api/http"
	"github.com/krce-idcs/qpgen/internal/bank"
	"github.com/krce-idcs/qpgen/internal/compose"
	"github.com/krce-idcs/qpgen/internal/config"
	"github.com/krce-idcs/qpgen/internal/db"
	"github.com/krce-idcs/qpgen/internal/ocr"
	"github.com/krce-idcs/qpgen/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := bank.NewSQLStore(dbh, cfg.DBDriver)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	composer := compose.New()
	composer.Banner = compose.NewHTTPBanner(cfg.BannerTimeout)
	composer.OCR = ocr.New(cfg.OCRLang)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length", "Content-Disposition", "X-Paper-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/api", func(ar chi.Router) {
		ar.Post("/upload-questions-excel/", api.UploadExcelHandler(bs, cfg.MaxUploadBytes))

		ar.Post("/template/upload", api.UploadTemplateHandler(bs, cfg.MaxUploadBytes))
		ar.Post("/template/scan-docx", api.ScanDocxHandler(bs, cfg.MaxUploadBytes))
		ar.Post("/template/generate-docx", api.GenerateDocxHandler(composer, bs, cfg.Institution, cfg.MaxUploadBytes))

		ar.Post("/templates", api.CreateTemplateHandler(store))
		ar.Get("/templates", api.ListTemplatesHandler(store))
		ar.Post("/templates/update", api.UpdateTemplateHandler(store))

		ar.Post("/question-bank-titles", api.CreateTitleHandler(store))
		ar.Get("/question-bank-titles", api.ListTitlesHandler(store))

		ar.Post("/question-bank/bulk", api.BulkInsertHandler(store))
		ar.Get("/question-bank", api.ListQuestionsHandler(store))
		ar.Post("/question-bank/update-status", api.UpdateStatusHandler(store))

		ar.Post("/admin/seed-question-bank", api.SeedHandler(store, cfg.AdminSecretHash, cfg.AdminSecret))

		ar.Route("/papers", func(pr chi.Router) {
			api.MountPapers(pr, bs)
		})
	})

	log.Printf("qpgen listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
