package store

import (
	"testing"

	"github.com/tansell/docsql/internal/doc"
)

func ptr[T any](v T) *T { return &v }

func rowIDs(rows []AllDocsRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, rows []AllDocsRow, want ...string) {
	t.Helper()
	got := rowIDs(rows)
	if len(got) != len(want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rows = %v, want %v", got, want)
		}
	}
}

func TestAllDocs_OrderedByID(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 4)

	res, err := s.AllDocs(AllDocsOptions{})
	if err != nil {
		t.Fatalf("AllDocs() failed: %v", err)
	}
	assertIDs(t, res.Rows, "doc-00", "doc-01", "doc-02", "doc-03")
	if res.TotalRows != 4 {
		t.Errorf("TotalRows = %d, want 4", res.TotalRows)
	}
	for _, row := range res.Rows {
		if row.Rev == "" {
			t.Errorf("row %q missing rev", row.ID)
		}
		if row.Doc != nil {
			t.Errorf("row %q carries a doc without include_docs", row.ID)
		}
	}
}

func TestAllDocs_Descending(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.AllDocs(AllDocsOptions{Descending: true})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-02", "doc-01", "doc-00")
}

func TestAllDocs_KeyRange(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 5)

	res, err := s.AllDocs(AllDocsOptions{
		StartKey: ptr("doc-01"),
		EndKey:   ptr("doc-03"),
	})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-01", "doc-02", "doc-03")

	res, err = s.AllDocs(AllDocsOptions{
		StartKey:     ptr("doc-01"),
		EndKey:       ptr("doc-03"),
		ExclusiveEnd: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-01", "doc-02")
}

func TestAllDocs_DescendingRange(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 5)

	// Descending flips the bounds: StartKey is the high end.
	res, err := s.AllDocs(AllDocsOptions{
		StartKey:   ptr("doc-03"),
		EndKey:     ptr("doc-01"),
		Descending: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-03", "doc-02", "doc-01")
}

func TestAllDocs_LimitAndSkip(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 5)

	res, err := s.AllDocs(AllDocsOptions{Limit: ptr(2), Skip: 1})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-01", "doc-02")
	if res.Offset != 1 {
		t.Errorf("Offset = %d, want 1", res.Offset)
	}
	// TotalRows reports the database, not the page.
	if res.TotalRows != 5 {
		t.Errorf("TotalRows = %d, want 5", res.TotalRows)
	}
}

func TestAllDocs_ZeroLimitReturnsOneRow(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.AllDocs(AllDocsOptions{Limit: ptr(0)})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-00")
}

func TestAllDocs_SingleKey(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.AllDocs(AllDocsOptions{Key: ptr("doc-01")})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-01")
}

func TestAllDocs_SkipsTombstones(t *testing.T) {
	s := newTestStore(t, Options{})
	results := seedDocs(t, s, 3)
	if _, err := s.Delete("doc-01", results[1].Rev); err != nil {
		t.Fatal(err)
	}

	res, err := s.AllDocs(AllDocsOptions{})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-00", "doc-02")
	if res.TotalRows != 2 {
		t.Errorf("TotalRows = %d, want 2", res.TotalRows)
	}
}

func TestAllDocs_KeysMode(t *testing.T) {
	s := newTestStore(t, Options{})
	results := seedDocs(t, s, 3)
	if _, err := s.Delete("doc-01", results[1].Rev); err != nil {
		t.Fatal(err)
	}

	res, err := s.AllDocs(AllDocsOptions{
		Keys:        []string{"doc-02", "ghost", "doc-01", "doc-00"},
		IncludeDocs: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 4 {
		t.Fatalf("rows = %v, want one per key", rowIDs(res.Rows))
	}

	// Request order is preserved.
	if res.Rows[0].ID != "doc-02" || res.Rows[0].Doc == nil {
		t.Errorf("row 0 = %+v", res.Rows[0])
	}
	if !res.Rows[1].Missing || res.Rows[1].Key != "ghost" {
		t.Errorf("unknown key row = %+v", res.Rows[1])
	}
	// Tombstones appear, marked, with no body.
	if !res.Rows[2].Deleted || res.Rows[2].Doc != nil {
		t.Errorf("tombstone row = %+v", res.Rows[2])
	}
	if res.Rows[3].ID != "doc-00" {
		t.Errorf("row 3 = %+v", res.Rows[3])
	}
}

func TestAllDocs_KeysModeGlobalLimitSkip(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 4)

	res, err := s.AllDocs(AllDocsOptions{
		Keys:  []string{"doc-00", "doc-01", "doc-02", "doc-03"},
		Skip:  1,
		Limit: ptr(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-01", "doc-02")
}

func TestAllDocs_KeysModeDescending(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 2)

	res, err := s.AllDocs(AllDocsOptions{
		Keys:       []string{"doc-00", "doc-01"},
		Descending: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, res.Rows, "doc-01", "doc-00")
}

func TestAllDocs_IncludeDocsWithConflicts(t *testing.T) {
	s := newTestStore(t, Options{})
	mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})

	// Graft a losing branch via replication.
	if _, err := s.BulkDocs([]doc.Body{{
		"_id": "doc1",
		"_revisions": map[string]any{
			"start": float64(1),
			"ids":   []any{"0000"},
		},
		"v": 0,
	}}, false); err != nil {
		t.Fatal(err)
	}

	res, err := s.AllDocs(AllDocsOptions{IncludeDocs: true, Conflicts: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %v", rowIDs(res.Rows))
	}
	conflicts, ok := res.Rows[0].Doc["_conflicts"].([]string)
	if !ok || len(conflicts) != 1 {
		t.Errorf("_conflicts = %v", res.Rows[0].Doc["_conflicts"])
	}
}

func TestAllDocs_UpdateSeq(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 2)

	res, err := s.AllDocs(AllDocsOptions{UpdateSeq: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.UpdateSeq != 2 {
		t.Errorf("UpdateSeq = %d, want 2", res.UpdateSeq)
	}

	res, err = s.AllDocs(AllDocsOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.UpdateSeq != -1 {
		t.Errorf("UpdateSeq = %d, want -1 when not requested", res.UpdateSeq)
	}
}

func TestAllDocs_EmptyDatabase(t *testing.T) {
	s := newTestStore(t, Options{})
	res, err := s.AllDocs(AllDocsOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 0 || res.TotalRows != 0 {
		t.Errorf("res = %+v, want empty", res)
	}
}
