// Package runstore persists training runs, per-epoch metrics, and a log of
// serving-time recognitions in SQLite. Schema changes are managed with
// embedded golang-migrate migrations; AttachAdminRoutes exposes live SQL
// debugging and backups on the debug mux.
package runstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS returns the migration sources compiled into the binary.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(fmt.Sprintf("embedded migrations missing: %v", err))
	}
	return sub
}

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("runstore: not found")

// Training run lifecycle states.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database at path. The schema
// is managed by migrations; call MigrateUp before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &Store{DB: db, path: path}, nil
}

// TrainingRun is one invocation of the training driver.
type TrainingRun struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	Status         string     `json:"status"`
	Epochs         int        `json:"epochs"`
	BatchSize      int        `json:"batch_size"`
	LearningRate   float64    `json:"learning_rate"`
	VocabSize      int        `json:"vocab_size"`
	TrainSamples   int        `json:"train_samples"`
	ValSamples     int        `json:"val_samples"`
	BestValAcc     float64    `json:"best_val_acc"`
	BestValLoss    float64    `json:"best_val_loss"`
	CheckpointPath string     `json:"checkpoint_path"`
	Error          *string    `json:"error"`
}

// EpochMetrics is the outcome of one train+validate epoch of a run.
type EpochMetrics struct {
	RunID        string  `json:"run_id"`
	Epoch        int     `json:"epoch"`
	TrainLoss    float64 `json:"train_loss"`
	TrainAcc     float64 `json:"train_acc"`
	ValLoss      float64 `json:"val_loss"`
	ValAcc       float64 `json:"val_acc"`
	LearningRate float64 `json:"learning_rate"`
	DurationMs   int64   `json:"duration_ms"`
}

// Recognition is one serving-time recognition event.
type Recognition struct {
	ID          int64     `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UserID      string    `json:"user_id"`
	NumFrames   int       `json:"num_frames"`
	TopSign     string    `json:"top_sign"`
	Confidence  float64   `json:"confidence"`
	EmittedText string    `json:"emitted_text"`
	DurationMs  int64     `json:"duration_ms"`
}

// CreateTrainingRun inserts a new run in the running state. A missing ID is
// filled with a fresh UUID and a zero StartedAt with the current time.
func (s *Store) CreateTrainingRun(run *TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	query := `
		INSERT INTO training_runs (
			id, started_at, status, epochs, batch_size, learning_rate,
			vocab_size, train_samples, val_samples
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.DB.Exec(
		query,
		run.ID,
		run.StartedAt.Unix(),
		run.Status,
		run.Epochs,
		run.BatchSize,
		run.LearningRate,
		run.VocabSize,
		run.TrainSamples,
		run.ValSamples,
	)
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}
	return nil
}

// CompleteTrainingRun marks a run complete with its final metrics.
func (s *Store) CompleteTrainingRun(id string, bestValAcc, bestValLoss float64, checkpointPath string) error {
	res, err := s.DB.Exec(`
		UPDATE training_runs
		SET status = ?, finished_at = ?, best_val_acc = ?, best_val_loss = ?, checkpoint_path = ?
		WHERE id = ?`,
		StatusComplete, time.Now().Unix(), bestValAcc, bestValLoss, checkpointPath, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete training run: %w", err)
	}
	return requireRow(res, id)
}

// FailTrainingRun marks a run failed with the error message.
func (s *Store) FailTrainingRun(id string, errMsg string) error {
	res, err := s.DB.Exec(`
		UPDATE training_runs
		SET status = ?, finished_at = ?, error = ?
		WHERE id = ?`,
		StatusError, time.Now().Unix(), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark training run failed: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("training run %s: %w", id, ErrNotFound)
	}
	return nil
}

const trainingRunColumns = `
	id, started_at, finished_at, status, epochs, batch_size, learning_rate,
	vocab_size, train_samples, val_samples, best_val_acc, best_val_loss,
	checkpoint_path, error
`

func scanTrainingRun(row interface{ Scan(...any) error }) (*TrainingRun, error) {
	var run TrainingRun
	var startedAtUnix int64
	var finishedAtUnix *int64

	err := row.Scan(
		&run.ID,
		&startedAtUnix,
		&finishedAtUnix,
		&run.Status,
		&run.Epochs,
		&run.BatchSize,
		&run.LearningRate,
		&run.VocabSize,
		&run.TrainSamples,
		&run.ValSamples,
		&run.BestValAcc,
		&run.BestValLoss,
		&run.CheckpointPath,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(startedAtUnix, 0)
	if finishedAtUnix != nil {
		t := time.Unix(*finishedAtUnix, 0)
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetTrainingRun retrieves a run by ID.
func (s *Store) GetTrainingRun(id string) (*TrainingRun, error) {
	row := s.DB.QueryRow(`SELECT`+trainingRunColumns+`FROM training_runs WHERE id = ?`, id)
	run, err := scanTrainingRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("training run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}
	return run, nil
}

// RecentTrainingRuns returns up to limit runs, newest first.
func (s *Store) RecentTrainingRuns(limit int) ([]TrainingRun, error) {
	rows, err := s.DB.Query(
		`SELECT`+trainingRunColumns+`FROM training_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		run, err := scanTrainingRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// RecordEpoch inserts the metrics for one finished epoch.
func (s *Store) RecordEpoch(m EpochMetrics) error {
	_, err := s.DB.Exec(`
		INSERT INTO epoch_metrics (
			run_id, epoch, train_loss, train_acc, val_loss, val_acc,
			learning_rate, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Epoch, m.TrainLoss, m.TrainAcc, m.ValLoss, m.ValAcc,
		m.LearningRate, m.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record epoch metrics: %w", err)
	}
	return nil
}

// EpochMetricsForRun returns a run's epoch metrics in epoch order.
func (s *Store) EpochMetricsForRun(runID string) ([]EpochMetrics, error) {
	rows, err := s.DB.Query(`
		SELECT run_id, epoch, train_loss, train_acc, val_loss, val_acc,
		       learning_rate, duration_ms
		FROM epoch_metrics WHERE run_id = ? ORDER BY epoch ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query epoch metrics: %w", err)
	}
	defer rows.Close()

	var metrics []EpochMetrics
	for rows.Next() {
		var m EpochMetrics
		if err := rows.Scan(
			&m.RunID,
			&m.Epoch,
			&m.TrainLoss,
			&m.TrainAcc,
			&m.ValLoss,
			&m.ValAcc,
			&m.LearningRate,
			&m.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan epoch metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return metrics, nil
}

// RecordRecognition appends one recognition event to the log.
func (s *Store) RecordRecognition(rec *Recognition) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.UserID == "" {
		rec.UserID = "anonymous"
	}

	res, err := s.DB.Exec(`
		INSERT INTO recognitions (
			created_at, user_id, num_frames, top_sign, confidence,
			emitted_text, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.Unix(), rec.UserID, rec.NumFrames, rec.TopSign,
		rec.Confidence, rec.EmittedText, rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record recognition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	rec.ID = id
	return nil
}

// RecentRecognitions returns up to limit recognition events, newest first.
func (s *Store) RecentRecognitions(limit int) ([]Recognition, error) {
	rows, err := s.DB.Query(`
		SELECT id, created_at, user_id, num_frames, top_sign, confidence,
		       emitted_text, duration_ms
		FROM recognitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recognitions: %w", err)
	}
	defer rows.Close()

	var recs []Recognition
	for rows.Next() {
		var rec Recognition
		var createdAtUnix int64
		if err := rows.Scan(
			&rec.ID,
			&createdAtUnix,
			&rec.UserID,
			&rec.NumFrames,
			&rec.TopSign,
			&rec.Confidence,
			&rec.EmittedText,
			&rec.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recognition: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAtUnix, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// CountRecognitions returns the total number of logged recognitions.
func (s *Store) CountRecognitions() (int, error) {
	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM recognitions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recognitions: %w", err)
	}
	return count, nil
}
