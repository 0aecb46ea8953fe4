package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeManifestTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Greetings")

	tree := map[string][]string{
		"48. Hello":     {"MVI_0001.MOV", "clip.mp4", "notes.txt"},
		"49. Thank You": {"take1.avi"},
	}
	for dir, files := range tree {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(root, dir, f), []byte("video"), 0644); err != nil {
				t.Fatal(err)
			}
		}
	}
	// Stray root-level file, not a sign folder.
	if err := os.WriteFile(filepath.Join(root, "README.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestBuildManifest(t *testing.T) {
	root := writeManifestTree(t)
	cfg := &ManifestConfig{DatasetRoot: root}
	cfg.applyDefaults()

	entries, err := BuildManifest(cfg)
	if err != nil {
		t.Fatalf("BuildManifest failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}

	first := entries[0]
	if first.URL != "/datasets/Greetings/48. Hello/MVI_0001.MOV" {
		t.Errorf("unexpected first URL: %s", first.URL)
	}
	if first.SignLabel != "hello" {
		t.Errorf("expected label hello, got %s", first.SignLabel)
	}
	if first.Filename != "MVI_0001.MOV" {
		t.Errorf("expected filename MVI_0001.MOV, got %s", first.Filename)
	}

	last := entries[2]
	if last.SignLabel != "thank_you" {
		t.Errorf("expected label thank_you, got %s", last.SignLabel)
	}
	if last.URL != "/datasets/Greetings/49. Thank You/take1.avi" {
		t.Errorf("unexpected last URL: %s", last.URL)
	}
}

func TestBuildManifestCustomPrefix(t *testing.T) {
	root := writeManifestTree(t)
	cfg := &ManifestConfig{
		DatasetRoot: root,
		URLPrefix:   "/media",
		Extensions:  []string{".MP4"},
	}
	cfg.applyDefaults()

	entries, err := BuildManifest(cfg)
	if err != nil {
		t.Fatalf("BuildManifest failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for .mp4 only, got %d", len(entries))
	}
	if entries[0].URL != "/media/Greetings/48. Hello/clip.mp4" {
		t.Errorf("unexpected URL: %s", entries[0].URL)
	}
}

func TestSignLabelFromDir(t *testing.T) {
	testCases := []struct {
		name    string
		dirName string
		want    string
	}{
		{name: "numbered", dirName: "48. Hello", want: "hello"},
		{name: "multi_word", dirName: "12. Thank You", want: "thank_you"},
		{name: "no_prefix", dirName: "Hello", want: "hello"},
		{name: "spaces_no_prefix", dirName: "Good Morning", want: "good_morning"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := signLabelFromDir(tc.dirName); got != tc.want {
				t.Errorf("signLabelFromDir(%q) = %q, want %q", tc.dirName, got, tc.want)
			}
		})
	}
}

func TestLoadManifestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	content := `dataset_root: /data/Greetings
output_file: /out/video_manifest.json
url_prefix: /media
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadManifestConfig(path)
	if err != nil {
		t.Fatalf("LoadManifestConfig failed: %v", err)
	}
	if cfg.DatasetRoot != "/data/Greetings" {
		t.Errorf("unexpected dataset root: %s", cfg.DatasetRoot)
	}
	if cfg.OutputFile != "/out/video_manifest.json" {
		t.Errorf("unexpected output file: %s", cfg.OutputFile)
	}
	if cfg.URLPrefix != "/media" {
		t.Errorf("unexpected url prefix: %s", cfg.URLPrefix)
	}
	if len(cfg.Extensions) != 3 {
		t.Errorf("expected default extensions, got %v", cfg.Extensions)
	}
}

func TestLoadManifestConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "missing_root", content: "url_prefix: /media\n"},
		{name: "malformed_yaml", content: "dataset_root: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "manifest.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadManifestConfig(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	t.Run("missing_file", func(t *testing.T) {
		if _, err := LoadManifestConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestWriteManifest(t *testing.T) {
	entries := []VideoEntry{
		{URL: "/datasets/Greetings/48. Hello/a.mp4", SignLabel: "hello", Filename: "a.mp4"},
		{URL: "/datasets/Greetings/49. Thank You/b.avi", SignLabel: "thank_you", Filename: "b.avi"},
	}
	out := filepath.Join(t.TempDir(), "video_manifest.json")

	if err := WriteManifest(entries, out); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}
	var got []VideoEntry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0] != entries[0] || got[1] != entries[1] {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}
