package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/fiscaldata/invoice-agent/internal/agent"
	"github.com/fiscaldata/invoice-agent/internal/api/handlers"
	"github.com/fiscaldata/invoice-agent/internal/api/middleware"
	"github.com/fiscaldata/invoice-agent/internal/archive"
	"github.com/fiscaldata/invoice-agent/internal/audit"
	auditmem "github.com/fiscaldata/invoice-agent/internal/audit/inmemory"
	"github.com/fiscaldata/invoice-agent/internal/config"
	infraBQ "github.com/fiscaldata/invoice-agent/internal/infra/bigquery"
	"github.com/fiscaldata/invoice-agent/internal/logger"
	"github.com/fiscaldata/invoice-agent/internal/merge"
	"github.com/fiscaldata/invoice-agent/internal/session"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file (optional)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	if cfg.ArchiveBucket == "" {
		log.Warn().Msg("No GCS bucket configured - uploaded CSV pairs will not be retained")
	}

	ctx := context.Background()

	// Session manager: each file-pair submission constructs its own agent.
	newAnswerer := func(ctx context.Context) (agent.Answerer, error) {
		return agent.NewGemini(ctx, cfg.Model)
	}
	mergeOpts := merge.Options{
		KeyCandidates: cfg.KeyCandidates,
		DateColumns:   cfg.DateColumns,
	}
	manager := session.NewManager(newAnswerer, mergeOpts, cfg.AnswerLanguage)

	// Audit infrastructure: in-memory store + queue, optional BigQuery sink.
	auditStore := auditmem.NewStore()
	auditQueue := auditmem.NewQueue(100, auditStore)

	var questionLogRepo infraBQ.QuestionLogRepository
	if cfg.AuditEnabled() {
		questionLogRepo, err = infraBQ.NewQuestionLogRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create question log repository")
		}
		defer questionLogRepo.Close()
	} else {
		log.Warn().Msg("No BigQuery project/dataset configured - question log stays in memory only")
	}

	auditHandler := func(ctx context.Context, entry *audit.QuestionLog) error {
		if questionLogRepo == nil {
			return nil
		}
		row := &infraBQ.QuestionLogRow{
			EntryID:    entry.EntryID,
			SessionID:  entry.SessionID,
			Question:   entry.Question,
			AskedTS:    entry.AskedAt,
			DurationMS: entry.DurationMS,
		}
		if entry.Answer != "" {
			row.Answer = bigquery.NullString{StringVal: entry.Answer, Valid: true}
		}
		if entry.AgentError != "" {
			row.AgentError = bigquery.NullString{StringVal: entry.AgentError, Valid: true}
		}
		return questionLogRepo.InsertQuestionLog(ctx, row)
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting audit worker")
		if err := auditQueue.Start(workerCtx, auditHandler); err != nil {
			log.Error().Err(err).Msg("Audit worker stopped with error")
		}
	}()

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		archiver = archive.NewGCSArchiver(cfg.ArchiveBucket)
	}

	sessionsHandler := handlers.NewSessionsHandler(manager, archiver, auditQueue, log)
	auditAPIHandler := handlers.NewAuditHandler(auditStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sessionsHandler.CreateSession(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		if rest == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Session ID is required")
			return
		}

		sessionID, action, _ := strings.Cut(rest, "/")

		switch {
		case action == "" && r.Method == http.MethodGet:
			sessionsHandler.GetSession(w, r, sessionID)
		case action == "" && r.Method == http.MethodDelete:
			sessionsHandler.DeleteSession(w, r, sessionID)
		case action == "ask" && r.Method == http.MethodPost:
			sessionsHandler.Ask(w, r, sessionID)
		case action == "history" && r.Method == http.MethodGet:
			sessionsHandler.History(w, r, sessionID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			auditAPIHandler.ListEntries(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("model", cfg.Model).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := auditQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping audit queue")
	}

	log.Info().Msg("Server exited")
}
