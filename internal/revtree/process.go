package revtree

// WriteFunc persists one resolved document edit. winningRev is the
// revision that must win after the write, newDeleted marks the written
// revision as a tombstone, and isUpdate tells the store whether the
// document row already exists. idx is the edit's slot in the batch
// results.
type WriteFunc func(info *DocInfo, winningRev string, newDeleted, isUpdate bool, idx int) error

// ProcessDocs drives per-document conflict resolution for a batch of
// parsed edits, in order. fetched holds the current metadata for every
// referenced id (prefetched in one pass); successful writes must update it
// so later edits to the same id inside the batch resolve against the new
// tree.
//
// Conflicts and write failures are isolated to their slot via onError;
// ProcessDocs itself only fails on resolver invariant violations.
func ProcessDocs(infos []*DocInfo, fetched map[string]*Metadata, newEdits bool, revsLimit int, write WriteFunc, onError func(idx int, err error)) error {
	for idx, info := range infos {
		if info == nil {
			// Slot handled outside tree resolution (local documents).
			continue
		}
		existing := fetched[info.ID]

		if existing == nil {
			// Insert: a new-edit pointing at an absent parent means the
			// caller tried to update a document that does not exist.
			if newEdits && info.Metadata.Tree[info.Metadata.Rev].Parent != "" {
				onError(idx, ErrConflict)
				continue
			}
			info.StemmedRevs = append(info.StemmedRevs, info.Metadata.Tree.Stem(revsLimit)...)
			winning := info.Metadata.Tree.Winning()
			newDeleted := info.Metadata.Tree.Deleted(info.Metadata.Rev)
			if err := write(info, winning, newDeleted, false, idx); err != nil {
				onError(idx, err)
			}
			continue
		}

		// Update: graft the edit's path into a copy of the stored tree. A
		// conflicting edit must not leak its revisions into the tree later
		// slots resolve against.
		merged := existing.Tree.Clone()
		outcome := merged.Merge(info.Metadata.Tree, info.Metadata.Rev)
		if newEdits && outcome != MergeNewLeaf {
			onError(idx, ErrConflict)
			continue
		}
		info.Metadata.Tree = merged
		info.Metadata.Seq = existing.Seq
		info.StemmedRevs = append(info.StemmedRevs, info.Metadata.Tree.Stem(revsLimit)...)

		winning := info.Metadata.Tree.Winning()
		newDeleted := info.Metadata.Tree.Deleted(info.Metadata.Rev)
		if err := write(info, winning, newDeleted, true, idx); err != nil {
			onError(idx, err)
		}
	}
	return nil
}
