package revtree

import "sort"

// MergeOutcome classifies how an edit's path landed in the tree.
type MergeOutcome string

const (
	// MergeNewLeaf extends an existing branch (or roots an empty tree).
	MergeNewLeaf MergeOutcome = "new_leaf"
	// MergeNewBranch introduces a conflicting branch.
	MergeNewBranch MergeOutcome = "new_branch"
	// MergeExisting matched a revision already in the tree (replayed or
	// duplicate edit).
	MergeExisting MergeOutcome = "existing"
)

// Merge grafts path (a single-branch tree produced by ParseDoc, with leaf
// rev) into t. Revisions already known keep their recorded flags; unknown
// ones are adopted, reconnecting stemmed placeholders where the path
// supplies a parent.
func (t Tree) Merge(path Tree, leaf string) MergeOutcome {
	_, existed := t[leaf]

	parentWasLeaf := false
	if info, ok := path[leaf]; ok && info.Parent != "" {
		if _, known := t[info.Parent]; known {
			parentWasLeaf = len(t.children()[info.Parent]) == 0
		}
	}
	emptyBefore := len(t) == 0

	for rev, incoming := range path {
		current, ok := t[rev]
		if !ok {
			t[rev] = &RevInfo{
				Parent:  incoming.Parent,
				Deleted: incoming.Deleted,
				Missing: incoming.Missing,
			}
			continue
		}
		// Known revision: the stored record wins, except that a concrete
		// parent link can reconnect a stemmed root.
		if current.Parent == "" && incoming.Parent != "" {
			if _, parentKnown := t[incoming.Parent]; parentKnown || path[incoming.Parent] != nil {
				current.Parent = incoming.Parent
			}
		}
		if current.Missing && !incoming.Missing {
			current.Missing = false
			current.Deleted = incoming.Deleted
		}
	}

	switch {
	case existed:
		return MergeExisting
	case emptyBefore, parentWasLeaf:
		return MergeNewLeaf
	default:
		return MergeNewBranch
	}
}

// Stem prunes history so no leaf keeps more than limit ancestors
// (including itself). Ancestors shared with a surviving window are kept.
// Returns the removed revisions sorted ascending; roots left behind lose
// their dangling parent pointers.
func (t Tree) Stem(limit int) []string {
	if limit < 1 || len(t) <= limit {
		return nil
	}

	keep := make(map[string]bool, len(t))
	for _, leaf := range t.Leaves() {
		rev := leaf
		for depth := 0; depth < limit && rev != ""; depth++ {
			keep[rev] = true
			info, ok := t[rev]
			if !ok {
				break
			}
			rev = info.Parent
		}
	}

	var removed []string
	for rev := range t {
		if !keep[rev] {
			removed = append(removed, rev)
		}
	}
	for _, rev := range removed {
		delete(t, rev)
	}
	for _, info := range t {
		if info.Parent != "" && !keep[info.Parent] {
			info.Parent = ""
		}
	}
	sort.Slice(removed, func(i, j int) bool {
		return CompareRevs(removed[i], removed[j]) < 0
	})
	return removed
}

// CompactCandidates returns the revisions whose bodies auto-compaction
// may drop: every non-leaf revision still holding a stored body.
func (t Tree) CompactCandidates() []string {
	idx := t.children()
	var out []string
	for rev, info := range t {
		if len(idx[rev]) == 0 || info.Missing {
			continue
		}
		out = append(out, rev)
	}
	sort.Slice(out, func(i, j int) bool {
		return CompareRevs(out[i], out[j]) < 0
	})
	return out
}
