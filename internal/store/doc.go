// Package store maps the multi-version document model onto SQLite.
//
// Six flat tables carry the whole model:
//   - document-store: one row per document id - revision-tree metadata
//     (json), the winning revision pointer (winningseq) and the change
//     cursor (max_seq)
//   - by-sequence: one row per stored revision, keyed by the global
//     autoincrement seq; (doc_id, rev) is unique
//   - attach-store: content-addressed attachment bodies keyed by digest
//   - attach-seq-store: (digest, seq) links between attachments and the
//     revisions referencing them
//   - local-store: non-replicated key-value documents with a plain "0-N"
//     write counter instead of a revision tree
//   - metadata-store: the database's instance id and schema version
//
// # Serialization
//
// SQLite is not proven safe for concurrent transactions on one
// connection, so every unit of work - reads included - runs through a
// strict FIFO transaction queue (one physical connection, one unit in
// flight, no interleaving). A unit failure rolls its transaction back and
// surfaces to its caller only; the queue advances regardless.
//
// # Invariants
//
//   - (doc_id, rev) pairs are never duplicated; replaying an identical
//     write updates the existing row in place
//   - max_seq values are strictly increasing and never reused, even after
//     compaction removes earlier rows
//   - winningseq always resolves to a by-sequence row of the same doc_id
//   - an attachment whose last (digest, seq) link is removed is deleted
package store
