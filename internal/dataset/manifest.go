package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestConfig describes a video manifest build: where the raw capture
// folders live and how their files map to frontend URLs.
type ManifestConfig struct {
	DatasetRoot string   `yaml:"dataset_root"`
	OutputFile  string   `yaml:"output_file,omitempty"`
	URLPrefix   string   `yaml:"url_prefix,omitempty"`
	Extensions  []string `yaml:"extensions,omitempty"`
}

// VideoEntry is one manifest row the capture frontend fetches.
type VideoEntry struct {
	URL       string `json:"url"`
	SignLabel string `json:"sign_label"`
	Filename  string `json:"filename"`
}

// LoadManifestConfig reads a manifest build configuration from a YAML file.
func LoadManifestConfig(configPath string) (*ManifestConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest config: %w", err)
	}

	var cfg ManifestConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse manifest config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.DatasetRoot == "" {
		return nil, fmt.Errorf("manifest config: dataset_root is required")
	}
	return &cfg, nil
}

func (c *ManifestConfig) applyDefaults() {
	if c.OutputFile == "" {
		c.OutputFile = "video_manifest.json"
	}
	if c.URLPrefix == "" {
		c.URLPrefix = "/datasets"
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".mov", ".mp4", ".avi"}
	}
}

// BuildManifest scans the dataset root for sign folders ("48. Hello" style
// names) and lists their video files. Folder order and file order follow
// the sorted directory listing, so rebuilds are deterministic.
func BuildManifest(cfg *ManifestConfig) ([]VideoEntry, error) {
	signDirs, err := os.ReadDir(cfg.DatasetRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root: %w", err)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}

	rootBase := filepath.Base(cfg.DatasetRoot)
	var entries []VideoEntry
	for _, dir := range signDirs {
		if !dir.IsDir() {
			continue
		}
		label := signLabelFromDir(dir.Name())

		files, err := os.ReadDir(filepath.Join(cfg.DatasetRoot, dir.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read sign folder %s: %w", dir.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !exts[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			entries = append(entries, VideoEntry{
				URL:       cfg.URLPrefix + "/" + path.Join(rootBase, dir.Name(), f.Name()),
				SignLabel: label,
				Filename:  f.Name(),
			})
		}
	}
	return entries, nil
}

// WriteManifest saves manifest entries as indented JSON.
func WriteManifest(entries []VideoEntry, outputFile string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(outputFile, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// signLabelFromDir derives a sign label from a capture folder name:
// "48. Hello" becomes "hello", "Thank You" becomes "thank_you". The numeric
// prefix is optional.
func signLabelFromDir(name string) string {
	if idx := strings.Index(name, ". "); idx >= 0 {
		name = name[idx+2:]
	}
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
