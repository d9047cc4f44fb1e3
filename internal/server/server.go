// Package server exposes the engine over HTTP. Session identity rides on the
// X-Session-ID header; handlers stay thin and push all state changes through
// the engine.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/maiphh/ocr/internal/engine"
	"github.com/maiphh/ocr/internal/export"
)

const sessionHeader = "X-Session-ID"

// maxUploadBytes bounds multipart parsing memory.
const maxUploadBytes = 64 << 20

type Server struct {
	engine *engine.Engine
	export *export.Service
	logger *slog.Logger
}

func New(e *engine.Engine, ex *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: e, export: ex, logger: logger}
}

// Routes builds the API router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/schema", s.handleGetSchema).Methods(http.MethodGet)
	api.HandleFunc("/schema/reset", s.handleResetSchema).Methods(http.MethodPost)
	api.HandleFunc("/schema/set", s.handleSetSchema).Methods(http.MethodPost)
	api.HandleFunc("/schema/fields", s.handleAddField).Methods(http.MethodPost)
	api.HandleFunc("/schema/fields/{field}", s.handleDeleteField).Methods(http.MethodDelete)

	api.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
	api.HandleFunc("/process/split-init", s.handleSplitInit).Methods(http.MethodPost)
	api.HandleFunc("/process/split-next", s.handleSplitNext).Methods(http.MethodPost)

	api.HandleFunc("/results/csv", s.handleDownloadCSV).Methods(http.MethodGet)
	api.HandleFunc("/results/json", s.handleDownloadJSON).Methods(http.MethodGet)
	api.HandleFunc("/results/excel", s.handleDownloadXLSX).Methods(http.MethodGet)
	api.HandleFunc("/results/update", s.handleUpdateResults).Methods(http.MethodPost)

	api.HandleFunc("/preview/{token}", s.handlePreview).Methods(http.MethodGet)
	api.HandleFunc("/preview/{token}/pdf", s.handlePreview).Methods(http.MethodGet)

	api.HandleFunc("/session/cleanup", s.handleSessionCleanup).Methods(http.MethodPost)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return r
}

func sessionID(r *http.Request) string {
	return r.Header.Get(sessionHeader)
}
