package testing

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Root is a test root laid out under t.TempDir(): a catalog file and a
// metadata directory.
type Root struct {
	Dir      string
	Catalog  string
	Metadata string
}

// CreateTestRoot writes a catalog holding items (item type → test path → ids).
// Automatically cleaned up with the test's temp dir.
func CreateTestRoot(t *testing.T, urlBase string, items map[string]map[string][]string) *Root {
	t.Helper()

	dir := t.TempDir()
	root := &Root{
		Dir:      dir,
		Catalog:  filepath.Join(dir, "MANIFEST.json"),
		Metadata: filepath.Join(dir, "meta"),
	}
	if err := os.MkdirAll(root.Metadata, 0o755); err != nil {
		t.Fatalf("Failed to create metadata dir: %v", err)
	}

	data, err := json.Marshal(map[string]any{"url_base": urlBase, "items": items})
	if err != nil {
		t.Fatalf("Failed to encode catalog: %v", err)
	}
	if err := os.WriteFile(root.Catalog, data, 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}
	return root
}

// WriteManifest stores expectation text for a test path (without .ini)
func (r *Root) WriteManifest(t *testing.T, testPath, text string) {
	t.Helper()

	file := filepath.Join(r.Metadata, filepath.FromSlash(testPath)+".ini")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", filepath.Dir(file), err)
	}
	if err := os.WriteFile(file, []byte(text), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
}

// ReadManifest returns the expectation text of a test path and whether it exists
func (r *Root) ReadManifest(t *testing.T, testPath string) (string, bool) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(r.Metadata, filepath.FromSlash(testPath)+".ini"))
	if os.IsNotExist(err) {
		return "", false
	}
	if err != nil {
		t.Fatalf("Failed to read manifest: %v", err)
	}
	return string(data), true
}

// SuiteLog brackets entries between suite_start and suite_end records
func SuiteLog(runInfo map[string]any, entries ...map[string]any) []map[string]any {
	if runInfo == nil {
		runInfo = map[string]any{}
	}
	out := []map[string]any{{"action": "suite_start", "tests": []string{}, "run_info": runInfo}}
	out = append(out, entries...)
	return append(out, map[string]any{"action": "suite_end"})
}

// WriteLog writes records as newline-delimited JSON and returns the file path
func WriteLog(t *testing.T, dir, name string, records []map[string]any) string {
	t.Helper()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			t.Fatalf("Failed to encode log record: %v", err)
		}
	}
	file := filepath.Join(dir, name)
	if err := os.WriteFile(file, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	return file
}
