package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/tansell/docsql/internal/doc"
)

func changeIDs(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.ID
	}
	return out
}

func TestChanges_OrderedBySeq(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.Changes(ChangesOptions{})
	if err != nil {
		t.Fatalf("Changes() failed: %v", err)
	}
	if len(res.Results) != 3 {
		t.Fatalf("results = %v", changeIDs(res.Results))
	}
	for i, c := range res.Results {
		if c.Seq != int64(i+1) {
			t.Errorf("seq[%d] = %d", i, c.Seq)
		}
	}
	if res.LastSeq != 3 {
		t.Errorf("LastSeq = %d, want 3", res.LastSeq)
	}
}

func TestChanges_OneEntryPerDoc(t *testing.T) {
	s := newTestStore(t, Options{})
	r1 := mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})
	mustPut(t, s, doc.Body{"_id": "doc2", "v": 1})
	r3 := mustPut(t, s, doc.Body{"_id": "doc1", "_rev": r1.Rev, "v": 2})

	res, err := s.Changes(ChangesOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// doc1 appears once, at its latest change.
	if len(res.Results) != 2 {
		t.Fatalf("results = %v", changeIDs(res.Results))
	}
	last := res.Results[1]
	if last.ID != "doc1" || last.Seq != 3 || last.Rev != r3.Rev {
		t.Errorf("latest change = %+v", last)
	}
}

func TestChanges_Since(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.Changes(ChangesOptions{Since: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].Seq != 3 {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestChanges_SinceCurrentIsEmpty(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 2)

	res, err := s.Changes(ChangesOptions{Since: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 0 {
		t.Errorf("results = %v", changeIDs(res.Results))
	}
	if res.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want the since cursor", res.LastSeq)
	}
}

func TestChanges_DeletesReported(t *testing.T) {
	s := newTestStore(t, Options{})
	r1 := mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})
	if _, err := s.Delete("doc1", r1.Rev); err != nil {
		t.Fatal(err)
	}

	res, err := s.Changes(ChangesOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("results = %v", changeIDs(res.Results))
	}
	if !res.Results[0].Deleted {
		t.Error("tombstone change not flagged deleted")
	}
}

func TestChanges_LimitZeroMeansOne(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.Changes(ChangesOptions{Limit: ptr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 {
		t.Errorf("limit 0 returned %d changes, want 1", len(res.Results))
	}
}

func TestChanges_Descending(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.Changes(ChangesOptions{Descending: true, Limit: ptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 || res.Results[0].Seq != 3 {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestChanges_DocIDs(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.Changes(ChangesOptions{DocIDs: []string{"doc-00", "doc-02"}})
	if err != nil {
		t.Fatal(err)
	}
	got := changeIDs(res.Results)
	if len(got) != 2 || got[0] != "doc-00" || got[1] != "doc-02" {
		t.Errorf("results = %v", got)
	}
}

func TestChanges_IncludeDocsAndFilter(t *testing.T) {
	s := newTestStore(t, Options{})
	mustPut(t, s, doc.Body{"_id": "doc1", "kind": "wanted"})
	mustPut(t, s, doc.Body{"_id": "doc2", "kind": "noise"})

	res, err := s.Changes(ChangesOptions{
		IncludeDocs: true,
		Filter: func(b doc.Body) bool {
			return b["kind"] == "wanted"
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("results = %v", changeIDs(res.Results))
	}
	if res.Results[0].Doc == nil || res.Results[0].Doc["kind"] != "wanted" {
		t.Errorf("doc = %v", res.Results[0].Doc)
	}
}

func TestChanges_LosingBranchAdvancesFeed(t *testing.T) {
	s := newTestStore(t, Options{})
	r1 := mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})

	// A replicated tombstone on a losing branch bumps the document's
	// change sequence without moving the winning revision.
	foreign := doc.Body{
		"_id":      "doc1",
		"_rev":     "1-deadbeef",
		"_deleted": true,
		"_revisions": map[string]any{
			"start": float64(1),
			"ids":   []any{"deadbeef"},
		},
	}
	results, err := s.BulkDocs([]doc.Body{foreign}, false)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err != nil {
		t.Fatalf("foreign edit failed: %v", results[0].Err)
	}

	res, err := s.Changes(ChangesOptions{Since: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("results = %v, want doc1 at its new sequence", changeIDs(res.Results))
	}
	c := res.Results[0]
	if c.ID != "doc1" || c.Seq != 2 {
		t.Errorf("change = %+v, want doc1 at seq 2", c)
	}
	// The reported revision is still the winner, not the grafted branch.
	if c.Rev != r1.Rev || c.Deleted {
		t.Errorf("change = %+v, want winning rev %s", c, r1.Rev)
	}
	if res.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want 2", res.LastSeq)
	}
}

func TestChanges_FilterDoesNotConsumeLimit(t *testing.T) {
	s := newTestStore(t, Options{})
	mustPut(t, s, doc.Body{"_id": "doc1", "kind": "noise"})
	mustPut(t, s, doc.Body{"_id": "doc2", "kind": "wanted"})

	res, err := s.Changes(ChangesOptions{
		Limit: ptr(1),
		Filter: func(b doc.Body) bool {
			return b["kind"] == "wanted"
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// The limit counts accepted changes; a rejected row must not starve
	// the page.
	if len(res.Results) != 1 || res.Results[0].ID != "doc2" {
		t.Fatalf("results = %v, want [doc2]", changeIDs(res.Results))
	}
	if res.LastSeq != 2 {
		t.Errorf("LastSeq = %d, want 2", res.LastSeq)
	}
}

func TestChanges_DocIDsBeyondChunkSize(t *testing.T) {
	s := newTestStore(t, Options{})

	n := keyChunkSize + 201
	docs := make([]doc.Body, n)
	ids := make([]string, n)
	for i := range docs {
		id := fmt.Sprintf("doc-%04d", i)
		ids[i] = id
		docs[i] = doc.Body{"_id": id}
	}
	results, err := s.BulkDocs(docs, true)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("slot %d failed: %v", i, r.Err)
		}
	}

	res, err := s.Changes(ChangesOptions{DocIDs: ids})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != n {
		t.Fatalf("results = %d, want %d (no id may be dropped)", len(res.Results), n)
	}
	for i, c := range res.Results {
		if c.Seq != int64(i+1) {
			t.Fatalf("seq[%d] = %d, want %d", i, c.Seq, i+1)
		}
	}
}

func TestChanges_DescendingIgnoresSince(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 3)

	res, err := s.Changes(ChangesOptions{Descending: true, Since: 2})
	if err != nil {
		t.Fatal(err)
	}
	// Descending reads start from the top; the cursor does not apply.
	if len(res.Results) != 3 {
		t.Fatalf("results = %v, want all three", changeIDs(res.Results))
	}
	for i, c := range res.Results {
		if c.Seq != int64(3-i) {
			t.Errorf("seq[%d] = %d", i, c.Seq)
		}
	}
}

func waitForChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change delivery")
		return Change{}
	}
}

func TestListenChanges_DeliversAfterWrite(t *testing.T) {
	s := newTestStore(t, Options{})
	ch := make(chan Change, 16)
	cancel := s.ListenChanges(ChangesOptions{}, func(c Change) { ch <- c }, nil)
	defer cancel()

	mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})

	c := waitForChange(t, ch)
	if c.ID != "doc1" || c.Seq != 1 {
		t.Errorf("change = %+v", c)
	}
}

func TestListenChanges_CatchesUpFromSince(t *testing.T) {
	s := newTestStore(t, Options{})
	seedDocs(t, s, 2)

	ch := make(chan Change, 16)
	cancel := s.ListenChanges(ChangesOptions{Since: 1}, func(c Change) { ch <- c }, nil)
	defer cancel()

	// The backlog after seq 1 arrives without any new write.
	c := waitForChange(t, ch)
	if c.Seq != 2 {
		t.Errorf("catch-up change = %+v", c)
	}
}

func TestListenChanges_NoRedelivery(t *testing.T) {
	s := newTestStore(t, Options{})
	ch := make(chan Change, 16)
	cancel := s.ListenChanges(ChangesOptions{}, func(c Change) { ch <- c }, nil)
	defer cancel()

	mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})
	waitForChange(t, ch)
	mustPut(t, s, doc.Body{"_id": "doc2", "v": 1})
	c := waitForChange(t, ch)
	if c.ID != "doc2" {
		t.Errorf("redelivered or misordered change: %+v", c)
	}
}

func TestListenChanges_CancelStopsDelivery(t *testing.T) {
	s := newTestStore(t, Options{})
	ch := make(chan Change, 16)
	cancel := s.ListenChanges(ChangesOptions{}, func(c Change) { ch <- c }, nil)

	mustPut(t, s, doc.Body{"_id": "doc1", "v": 1})
	waitForChange(t, ch)
	cancel()

	mustPut(t, s, doc.Body{"_id": "doc2", "v": 1})
	select {
	case c := <-ch:
		t.Errorf("delivery after cancel: %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}
