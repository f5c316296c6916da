package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testRun creates a run with fixed identity fields.
func testRun(id string, version string) Run {
	return Run{
		ID:         id,
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Translator: "cellc",
		Version:    version,
		IRVersion:  "1",
	}
}

// okGeneration creates a successful generation.
func okGeneration(model, variant, tag, fingerprint, hash string) Generation {
	return Generation{
		Model:       model,
		Variant:     variant,
		Status:      StatusOK,
		ClassName:   tag,
		ExportTag:   tag,
		Fingerprint: fingerprint,
		Hash:        hash,
	}
}
