// Package monitor serves live training telemetry over HTTP: run state and
// epoch history as JSON, browser charts for the loss, accuracy and attention
// series, and PNG curve export for finished runs.
package monitor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sunosaathi/sanket/internal/httputil"
	"github.com/sunosaathi/sanket/internal/runstore"
	"github.com/sunosaathi/sanket/internal/training"
)

// WebServer handles the HTTP interface for monitoring training runs.
// Either the runner or the store may be nil: a live training process has a
// runner and perhaps no database, while a post-hoc inspection of recorded
// runs has a store and no runner.
type WebServer struct {
	address string
	runner  *training.Runner
	store   *runstore.Store
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address string
	Runner  *training.Runner
	Store   *runstore.Store
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address: config.Address,
		runner:  config.Runner,
		store:   config.Store,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting training monitor on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start monitor server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down monitor server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor server force close error: %v", err)
		}
	}

	log.Printf("monitor server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/api/train/status", ws.handleStatus)
	mux.HandleFunc("/api/train/history", ws.handleHistory)
	mux.HandleFunc("/api/train/runs", ws.handleRuns)
	mux.HandleFunc("/charts/loss", ws.handleLossChart)
	mux.HandleFunc("/charts/accuracy", ws.handleAccuracyChart)
	mux.HandleFunc("/charts/attention", ws.handleAttentionChart)

	return mux
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>Training Monitor</title></head>
<body>
<h1>Training Monitor</h1>
<ul>
<li><a href="/api/train/status">Run status (JSON)</a></li>
<li><a href="/api/train/history">Epoch history (JSON)</a></li>
<li><a href="/api/train/runs">Recorded runs (JSON)</a></li>
<li><a href="/charts/loss">Loss chart</a></li>
<li><a href="/charts/accuracy">Accuracy chart</a></li>
<li><a href="/charts/attention">Attention heatmap</a></li>
</ul>
</body>
</html>
`

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleStatus reports the runner's current state, including partial history
// while a run is in flight.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.runner == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no training runner attached")
		return
	}
	httputil.WriteJSONOK(w, ws.runner.GetRunState())
}

// historyForRequest resolves which epoch series a request wants: the live
// runner's history by default, or a recorded run's when run_id is given.
// The second return value labels the source for chart subtitles.
func (ws *WebServer) historyForRequest(r *http.Request) ([]training.EpochResult, string, error) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		if ws.runner == nil {
			return nil, "", fmt.Errorf("no training runner attached")
		}
		return ws.runner.History(), "live", nil
	}

	if ws.store == nil {
		return nil, "", fmt.Errorf("no database configured for run lookup")
	}
	metrics, err := ws.store.EpochMetricsForRun(runID)
	if err != nil {
		return nil, "", err
	}
	history := make([]training.EpochResult, len(metrics))
	for i, m := range metrics {
		history[i] = training.EpochResult{
			Epoch:        m.Epoch,
			TrainLoss:    m.TrainLoss,
			TrainAcc:     m.TrainAcc,
			ValLoss:      m.ValLoss,
			ValAcc:       m.ValAcc,
			LearningRate: m.LearningRate,
			DurationMs:   m.DurationMs,
		}
	}
	return history, runID, nil
}

func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	history, _, err := ws.historyForRequest(r)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteJSONOK(w, history)
}

// handleRuns lists recorded training runs, newest first.
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		if parsed > 200 {
			parsed = 200
		}
		limit = parsed
	}

	runs, err := ws.store.RecentTrainingRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []runstore.TrainingRun{}
	}
	httputil.WriteJSONOK(w, runs)
}
