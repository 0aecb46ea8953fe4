// Package api is the recognition service's HTTP surface: recognition
// endpoints, vocabulary and model metadata, effective config, and health.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sunosaathi/sanket/internal/config"
	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/recognizer"
	"github.com/sunosaathi/sanket/internal/runstore"
	"github.com/sunosaathi/sanket/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	rec   *recognizer.Recognizer
	store *runstore.Store
	cfg   *config.ServiceConfig
}

// NewServer wires the recognizer, the optional run store (nil disables
// recognition recording), and the service config into an HTTP server.
func NewServer(rec *recognizer.Recognizer, store *runstore.Store, cfg *config.ServiceConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyServiceConfig()
	}
	return &Server{
		rec:   rec,
		store: store,
		cfg:   cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/recognize", s.handleRecognize)
	mux.HandleFunc("/api/recognize/stream", s.handleRecognizeStream)
	mux.HandleFunc("/api/recognitions", s.listRecognitions)
	mux.HandleFunc("/api/vocabulary", s.handleVocabulary)
	mux.HandleFunc("/api/model", s.handleModelInfo)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// errorStatus maps recognition errors to HTTP statuses: malformed keypoint
// input is the caller's fault, a missing model means the service is not
// ready yet, everything else is internal.
func errorStatus(err error) int {
	var shapeErr *keypoints.ShapeError
	switch {
	case errors.Is(err, recognizer.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, keypoints.ErrEmptySequence), errors.As(err, &shapeErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "sanket",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write health")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"model_path":          s.cfg.GetModelPath(),
		"vocab_path":          s.cfg.GetVocabPath(),
		"builtin_vocab_size":  s.cfg.GetBuiltinVocabSize(),
		"strict_load":         s.cfg.GetStrictLoad(),
		"accept_threshold":    s.cfg.GetAcceptThreshold(),
		"window":              s.cfg.GetWindow(),
		"default_top_k":       s.cfg.GetDefaultTopK(),
		"db_path":             s.cfg.GetDBPath(),
		"record_recognitions": s.cfg.GetRecordRecognitions(),
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}
