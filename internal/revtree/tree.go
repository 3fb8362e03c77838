// Package revtree implements the revision resolver for the storage
// adapter: the multi-version revision tree of a document, winning-revision
// selection, conflict collection, leaf resolution, stemming, and the
// bulk-write orchestration that classifies each edit as insert or update.
//
// The tree is stored as a flat parent-pointer map keyed by revision id
// ("generation-hash"). A revision with no children is a leaf; the winning
// revision is the highest-sorted non-tombstoned leaf. Stemmed ancestors
// survive as Missing placeholders so replicated histories stay connected.
package revtree

import (
	"sort"

	"github.com/tansell/docsql/internal/doc"
)

// RevInfo describes one revision in a document's tree.
type RevInfo struct {
	// Parent is the revision this one was edited from, or "" for a root.
	Parent string `json:"parent,omitempty"`
	// Deleted marks the revision as a tombstone.
	Deleted bool `json:"deleted,omitempty"`
	// Missing marks a revision whose body is not stored (stemmed or
	// compacted away); the tree keeps it so histories stay connected.
	Missing bool `json:"missing,omitempty"`
}

// Tree is a document's revision tree keyed by revision id.
type Tree map[string]*RevInfo

// Metadata is the per-document record persisted in the document store's
// json column: the revision tree plus the sequence bookkeeping the change
// feed relies on. Rev is transient - it names the revision of the edit
// currently being written and is never persisted.
type Metadata struct {
	ID   string `json:"id"`
	Tree Tree   `json:"rev_tree"`
	Seq  int64  `json:"seq,omitempty"`

	Rev string `json:"-"`
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	out := make(Tree, len(t))
	for rev, info := range t {
		c := *info
		out[rev] = &c
	}
	return out
}

// CompareRevs orders revision ids by generation, then hash. Returns
// -1, 0 or 1.
func CompareRevs(a, b string) int {
	ga, ha, errA := splitRev(a)
	gb, hb, errB := splitRev(b)
	if errA != nil || errB != nil {
		// Malformed revs never reach here from parsed docs; fall back to
		// plain string order so the comparison stays total.
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	switch {
	case ga < gb:
		return -1
	case ga > gb:
		return 1
	case ha < hb:
		return -1
	case ha > hb:
		return 1
	}
	return 0
}

func splitRev(rev string) (int, string, error) {
	return doc.ParseRev(rev)
}

// children builds the reverse index: parent rev -> child revs.
func (t Tree) children() map[string][]string {
	idx := make(map[string][]string, len(t))
	for rev, info := range t {
		if info.Parent != "" {
			idx[info.Parent] = append(idx[info.Parent], rev)
		}
	}
	return idx
}

// Leaves returns all leaf revisions sorted descending (winning-candidate
// order: highest generation first, then highest hash).
func (t Tree) Leaves() []string {
	idx := t.children()
	var leaves []string
	for rev := range t {
		if len(idx[rev]) == 0 {
			leaves = append(leaves, rev)
		}
	}
	sort.Slice(leaves, func(i, j int) bool {
		return CompareRevs(leaves[i], leaves[j]) > 0
	})
	return leaves
}

// Winning returns the winning revision: the highest-sorted leaf that is
// not a tombstone, or the highest-sorted leaf overall when every branch
// ends deleted. Returns "" for an empty tree.
func (t Tree) Winning() string {
	leaves := t.Leaves()
	if len(leaves) == 0 {
		return ""
	}
	for _, rev := range leaves {
		if !t[rev].Deleted {
			return rev
		}
	}
	return leaves[0]
}

// Deleted reports whether rev is a tombstone. Unknown revs report false.
func (t Tree) Deleted(rev string) bool {
	info, ok := t[rev]
	return ok && info.Deleted
}

// Conflicts returns the conflicting revisions: every non-tombstoned leaf
// except the winning one, sorted descending.
func (t Tree) Conflicts() []string {
	winning := t.Winning()
	var out []string
	for _, rev := range t.Leaves() {
		if rev == winning || t[rev].Deleted {
			continue
		}
		out = append(out, rev)
	}
	return out
}

// Latest resolves rev to the leaf of its branch: the highest-sorted leaf
// descended from rev, or rev itself if it is a leaf. Returns "" when rev
// is not in the tree.
func (t Tree) Latest(rev string) string {
	if _, ok := t[rev]; !ok {
		return ""
	}
	idx := t.children()
	best := ""
	var walk func(r string)
	walk = func(r string) {
		kids := idx[r]
		if len(kids) == 0 {
			if best == "" || CompareRevs(r, best) > 0 {
				best = r
			}
			return
		}
		for _, kid := range kids {
			walk(kid)
		}
	}
	walk(rev)
	return best
}

// Traverse visits every revision in ascending (generation, hash) order.
func (t Tree) Traverse(fn func(rev string, info *RevInfo)) {
	revs := make([]string, 0, len(t))
	for rev := range t {
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool {
		return CompareRevs(revs[i], revs[j]) < 0
	})
	for _, rev := range revs {
		fn(rev, t[rev])
	}
}

// MarkMissing flags the given revisions as having no stored body. Used by
// compaction so the tree records which history is gone.
func (t Tree) MarkMissing(revs []string) {
	for _, rev := range revs {
		if info, ok := t[rev]; ok {
			info.Missing = true
		}
	}
}
