package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical service defaults file.
// This is the single source of truth for all default serving and training
// values.
const DefaultConfigPath = "config/service.defaults.json"

// ServiceConfig is the root configuration for the recognition service and
// the training driver. The schema matches the /api/config endpoint so the
// same JSON works for startup configuration and for inspection at runtime.
// All fields are optional; the Get* methods supply defaults for anything
// omitted.
type ServiceConfig struct {
	// Serving params
	ModelPath          *string  `json:"model_path,omitempty"`
	VocabPath          *string  `json:"vocab_path,omitempty"`
	BuiltinVocabSize   *int     `json:"builtin_vocab_size,omitempty"`
	StrictLoad         *bool    `json:"strict_load,omitempty"`
	AcceptThreshold    *float64 `json:"accept_threshold,omitempty"`
	Window             *int     `json:"window,omitempty"`
	DefaultTopK        *int     `json:"default_top_k,omitempty"`
	Seed               *int64   `json:"seed,omitempty"`
	DBPath             *string  `json:"db_path,omitempty"`
	RecordRecognitions *bool    `json:"record_recognitions,omitempty"`

	// Model architecture params (fresh weights and training)
	Hidden  *int     `json:"hidden,omitempty"`
	Layers  *int     `json:"layers,omitempty"`
	Dropout *float64 `json:"dropout,omitempty"`

	// Training params
	Epochs          *int     `json:"epochs,omitempty"`
	BatchSize       *int     `json:"batch_size,omitempty"`
	LearningRate    *float64 `json:"learning_rate,omitempty"`
	LRFactor        *float64 `json:"lr_factor,omitempty"`
	LRPatience      *int     `json:"lr_patience,omitempty"`
	CheckpointEvery *int     `json:"checkpoint_every,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyServiceConfig returns a ServiceConfig with all fields set to nil.
// Use LoadServiceConfig to load actual values from a file.
func EmptyServiceConfig() *ServiceConfig {
	return &ServiceConfig{}
}

// LoadServiceConfig loads a ServiceConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyServiceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical service defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *ServiceConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadServiceConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ServiceConfig) Validate() error {
	if c.AcceptThreshold != nil {
		if *c.AcceptThreshold <= 0 || *c.AcceptThreshold >= 1 {
			return fmt.Errorf("accept_threshold must be between 0 and 1 exclusive, got %f", *c.AcceptThreshold)
		}
	}
	if c.Window != nil && *c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", *c.Window)
	}
	if c.DefaultTopK != nil && *c.DefaultTopK <= 0 {
		return fmt.Errorf("default_top_k must be positive, got %d", *c.DefaultTopK)
	}
	if c.BuiltinVocabSize != nil && *c.BuiltinVocabSize <= 0 {
		return fmt.Errorf("builtin_vocab_size must be positive, got %d", *c.BuiltinVocabSize)
	}
	if c.Hidden != nil && *c.Hidden <= 0 {
		return fmt.Errorf("hidden must be positive, got %d", *c.Hidden)
	}
	if c.Layers != nil && *c.Layers <= 0 {
		return fmt.Errorf("layers must be positive, got %d", *c.Layers)
	}
	if c.Dropout != nil {
		if *c.Dropout < 0 || *c.Dropout >= 1 {
			return fmt.Errorf("dropout must be in [0, 1), got %f", *c.Dropout)
		}
	}
	if c.Epochs != nil && *c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", *c.Epochs)
	}
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", *c.LearningRate)
	}
	if c.LRFactor != nil {
		if *c.LRFactor <= 0 || *c.LRFactor >= 1 {
			return fmt.Errorf("lr_factor must be between 0 and 1 exclusive, got %f", *c.LRFactor)
		}
	}
	if c.LRPatience != nil && *c.LRPatience < 0 {
		return fmt.Errorf("lr_patience must be non-negative, got %d", *c.LRPatience)
	}
	if c.CheckpointEvery != nil && *c.CheckpointEvery <= 0 {
		return fmt.Errorf("checkpoint_every must be positive, got %d", *c.CheckpointEvery)
	}
	return nil
}

// GetModelPath returns the model_path value or the default.
func (c *ServiceConfig) GetModelPath() string {
	if c.ModelPath == nil {
		return "trained_models/best_model.ckpt" // default
	}
	return *c.ModelPath
}

// GetVocabPath returns the vocab_path value or the default.
func (c *ServiceConfig) GetVocabPath() string {
	if c.VocabPath == nil {
		return "trained_models/vocabulary.json" // default
	}
	return *c.VocabPath
}

// GetBuiltinVocabSize returns the builtin_vocab_size value or the default.
func (c *ServiceConfig) GetBuiltinVocabSize() int {
	if c.BuiltinVocabSize == nil {
		return 100
	}
	return *c.BuiltinVocabSize
}

// GetStrictLoad returns the strict_load value or the default.
func (c *ServiceConfig) GetStrictLoad() bool {
	if c.StrictLoad == nil {
		return false // default: degrade to fresh weights
	}
	return *c.StrictLoad
}

// GetAcceptThreshold returns the accept_threshold value or the default.
func (c *ServiceConfig) GetAcceptThreshold() float64 {
	if c.AcceptThreshold == nil {
		return 0.5
	}
	return *c.AcceptThreshold
}

// GetWindow returns the window value or the default.
func (c *ServiceConfig) GetWindow() int {
	if c.Window == nil {
		return 64
	}
	return *c.Window
}

// GetDefaultTopK returns the default_top_k value or the default.
func (c *ServiceConfig) GetDefaultTopK() int {
	if c.DefaultTopK == nil {
		return 3
	}
	return *c.DefaultTopK
}

// GetSeed returns the seed value or the default.
func (c *ServiceConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 42
	}
	return *c.Seed
}

// GetDBPath returns the db_path value or the default.
func (c *ServiceConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "sanket.db"
	}
	return *c.DBPath
}

// GetRecordRecognitions returns the record_recognitions value or the default.
func (c *ServiceConfig) GetRecordRecognitions() bool {
	if c.RecordRecognitions == nil {
		return true
	}
	return *c.RecordRecognitions
}

// GetHidden returns the hidden value or the default.
func (c *ServiceConfig) GetHidden() int {
	if c.Hidden == nil {
		return 256
	}
	return *c.Hidden
}

// GetLayers returns the layers value or the default.
func (c *ServiceConfig) GetLayers() int {
	if c.Layers == nil {
		return 2
	}
	return *c.Layers
}

// GetDropout returns the dropout value or the default.
func (c *ServiceConfig) GetDropout() float64 {
	if c.Dropout == nil {
		return 0.3
	}
	return *c.Dropout
}

// GetEpochs returns the epochs value or the default.
func (c *ServiceConfig) GetEpochs() int {
	if c.Epochs == nil {
		return 50
	}
	return *c.Epochs
}

// GetBatchSize returns the batch_size value or the default.
func (c *ServiceConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 32
	}
	return *c.BatchSize
}

// GetLearningRate returns the learning_rate value or the default.
func (c *ServiceConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 0.001
	}
	return *c.LearningRate
}

// GetLRFactor returns the lr_factor value or the default.
func (c *ServiceConfig) GetLRFactor() float64 {
	if c.LRFactor == nil {
		return 0.5
	}
	return *c.LRFactor
}

// GetLRPatience returns the lr_patience value or the default.
func (c *ServiceConfig) GetLRPatience() int {
	if c.LRPatience == nil {
		return 5
	}
	return *c.LRPatience
}

// GetCheckpointEvery returns the checkpoint_every value or the default.
func (c *ServiceConfig) GetCheckpointEvery() int {
	if c.CheckpointEvery == nil {
		return 10
	}
	return *c.CheckpointEvery
}
