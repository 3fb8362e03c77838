package store

import (
	"fmt"
	"testing"

	"github.com/tansell/docsql/internal/doc"
)

// newTestStore opens a fresh database in a temp directory. Deterministic
// revision ids keep test expectations stable.
func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "testdb"
	}
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	opts.DeterministicRevs = true

	r := NewRegistry()
	s, err := r.Open(opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { r.Close(opts.Name) })
	return s
}

// mustPut writes one new edit and fails the test on any error.
func mustPut(t *testing.T, s *Store, body doc.Body) WriteResult {
	t.Helper()
	res, err := s.Put(body)
	if err != nil {
		t.Fatalf("Put(%v) failed: %v", body, err)
	}
	if res.Err != nil {
		t.Fatalf("Put(%v) slot failed: %v", body, res.Err)
	}
	return res
}

// seedDocs writes n documents named doc-0 .. doc-n-1.
func seedDocs(t *testing.T, s *Store, n int) []WriteResult {
	t.Helper()
	out := make([]WriteResult, n)
	for i := 0; i < n; i++ {
		out[i] = mustPut(t, s, doc.Body{"_id": docID(i), "n": i})
	}
	return out
}

func docID(i int) string {
	return fmt.Sprintf("doc-%02d", i)
}
