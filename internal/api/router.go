package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalambet/voicecrm/internal/logger"
	"github.com/kalambet/voicecrm/internal/pipeline"
	"github.com/kalambet/voicecrm/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const defaultMaxUploadBytes = 25 << 20

type Deps struct {
	Store *storage.Store
	Voice *pipeline.Voice
	Log   *logger.Logger
	// MaxUploadBytes bounds the /process-voice request body.
	MaxUploadBytes int64
	// AllowedOrigins for CORS; nil allows any origin.
	AllowedOrigins []string
}

// NewHandler returns the HTTP API: voice processing plus history CRUD.
func NewHandler(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(deps.AllowedOrigins) == 0 {
		deps.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(deps.Log.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)
	r.Post("/process-voice", handleProcessVoice(deps))
	r.Get("/history", handleListHistory(deps))
	r.Post("/history", handleCreateHistory(deps))
	r.Put("/history/{record_id}", handleUpdateHistory(deps))
	r.Delete("/history/{record_id}", handleDeleteHistory(deps))

	return r
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"Voice CRM API is running"}`))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"detail": msg,
		"type":   errType,
	})
}
