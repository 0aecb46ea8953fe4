package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sunosaathi/sanket/internal/httputil"
	"github.com/sunosaathi/sanket/internal/keypoints"
	"github.com/sunosaathi/sanket/internal/recognizer"
	"github.com/sunosaathi/sanket/internal/runstore"
)

// maxRecognizeBody caps recognition payloads. A full 64-frame sequence of
// 543 three-coordinate points encodes to a few MB of JSON.
const maxRecognizeBody = 32 << 20

type recognitionRequest struct {
	Frames []keypoints.Frame `json:"frames"`
	UserID string            `json:"user_id"`
	TopK   int               `json:"top_k"`
}

type recognitionResponse struct {
	Predictions []recognizer.Prediction `json:"predictions"`
	Text        string                  `json:"text"`
	NumFrames   int                     `json:"num_frames"`
}

type streamRequest struct {
	Windows [][]keypoints.Frame `json:"windows"`
	UserID  string              `json:"user_id"`
}

type streamResponse struct {
	Text       string `json:"text"`
	NumWindows int    `json:"num_windows"`
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req recognitionRequest
	if err := httputil.DecodeJSON(w, r, &req, maxRecognizeBody); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	start := time.Now()
	preds, err := s.rec.Recognize(req.Frames, req.TopK)
	if err != nil {
		s.writeJSONError(w, errorStatus(err), fmt.Sprintf("Recognition failed: %v", err))
		return
	}

	// Text carries the top prediction only when it clears the confidence
	// gate; callers treat empty text as "no confident sign".
	text := ""
	if len(preds) > 0 && s.rec.Accepted(preds[0].Confidence) {
		text = preds[0].Sign
	}

	resp := recognitionResponse{
		Predictions: preds,
		Text:        text,
		NumFrames:   len(req.Frames),
	}
	s.recordRecognition(req.UserID, resp, time.Since(start).Milliseconds())

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write recognition")
		return
	}
}

func (s *Server) handleRecognizeStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req streamRequest
	if err := httputil.DecodeJSON(w, r, &req, maxRecognizeBody); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(req.Windows) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "No windows provided")
		return
	}

	text, err := s.rec.RecognizeStream(req.Windows)
	if err != nil {
		s.writeJSONError(w, errorStatus(err), fmt.Sprintf("Recognition failed: %v", err))
		return
	}

	resp := streamResponse{Text: text, NumWindows: len(req.Windows)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write recognition")
		return
	}
}

// recordRecognition persists one recognition event. A failed insert logs a
// warning and the response is served anyway.
func (s *Server) recordRecognition(userID string, resp recognitionResponse, durationMs int64) {
	if s.store == nil || !s.cfg.GetRecordRecognitions() {
		return
	}
	rec := &runstore.Recognition{
		UserID:      userID,
		NumFrames:   resp.NumFrames,
		EmittedText: resp.Text,
		DurationMs:  durationMs,
	}
	if len(resp.Predictions) > 0 {
		rec.TopSign = resp.Predictions[0].Sign
		rec.Confidence = resp.Predictions[0].Confidence
	}
	if err := s.store.RecordRecognition(rec); err != nil {
		log.Printf("[API] Warning: failed to record recognition: %v", err)
	}
}

func (s *Server) listRecognitions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "No database configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	recs, err := s.store.RecentRecognitions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve recognitions: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(recs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write recognitions")
		return
	}
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	v := s.rec.Vocabulary()
	if v == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Model not loaded")
		return
	}

	resp := map[string]interface{}{
		"labels": v.Labels(),
		"size":   v.Len(),
		"source": s.rec.Info().VocabSource,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write vocabulary")
		return
	}
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.rec.Info()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write model info")
		return
	}
}
