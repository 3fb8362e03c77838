package store

import (
	"database/sql"

	"github.com/tansell/docsql/internal/revtree"
)

// Compact prunes every stored non-leaf revision body in the database.
// Leaves (including tombstones) survive; the revision tree keeps the
// pruned revisions as missing nodes so replicated histories still line
// up.
func (s *Store) Compact() error {
	s.log.Debug("compact", "db", s.name)
	return s.queue.Write(func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, json FROM " + docStore)
		if err != nil {
			return err
		}
		type docMeta struct {
			id  string
			raw string
		}
		var metas []docMeta
		for rows.Next() {
			var m docMeta
			if err := rows.Scan(&m.id, &m.raw); err != nil {
				rows.Close()
				return err
			}
			metas = append(metas, m)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, m := range metas {
			meta, err := unmarshalMetadata(m.raw)
			if err != nil {
				return err
			}
			if err := compactDocumentTx(tx, meta, meta.Tree.CompactCandidates()); err != nil {
				return err
			}
		}
		return nil
	})
}

// CompactDocument prunes the given revisions of one document. The revs
// must not be leaves; pruning a leaf would lose live data.
func (s *Store) CompactDocument(id string, revs []string) error {
	if len(revs) == 0 {
		return nil
	}
	return s.queue.Write(func(tx *sql.Tx) error {
		meta, err := fetchMetadata(tx, id)
		if err != nil {
			return err
		}
		return compactDocumentTx(tx, meta, revs)
	})
}

func compactDocumentTx(tx *sql.Tx, meta *revtree.Metadata, revs []string) error {
	if len(revs) == 0 {
		return nil
	}
	meta.Tree.MarkMissing(revs)
	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE "+docStore+" SET json=? WHERE id=?", metaJSON, meta.ID); err != nil {
		return err
	}
	return compactRevs(tx, meta.ID, revs)
}

// compactRevs deletes the revision rows for revs of one document, then
// garbage collects attachment bodies no surviving revision references.
func compactRevs(tx *sql.Tx, docID string, revs []string) error {
	if len(revs) == 0 {
		return nil
	}

	var seqs []int64
	for len(revs) > 0 {
		chunk := revs
		if len(chunk) > keyChunkSize-1 {
			chunk = chunk[:keyChunkSize-1]
		}
		revs = revs[len(chunk):]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, docID)
		for _, rev := range chunk {
			args = append(args, rev)
		}
		rows, err := tx.Query(
			"SELECT seq FROM "+bySeqStore+" WHERE doc_id=? AND rev IN "+qMarks(len(chunk)),
			args...,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var seq int64
			if err := rows.Scan(&seq); err != nil {
				rows.Close()
				return err
			}
			seqs = append(seqs, seq)
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}

	for _, seq := range seqs {
		digests, err := linkedDigests(tx, seq)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM "+attachSeqStore+" WHERE seq=?", seq); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM "+bySeqStore+" WHERE seq=?", seq); err != nil {
			return err
		}
		for _, digest := range digests {
			orphaned, err := digestOrphaned(tx, digest)
			if err != nil {
				return err
			}
			if !orphaned {
				continue
			}
			if _, err := tx.Exec("DELETE FROM "+attachStore+" WHERE digest=?", digest); err != nil {
				return err
			}
		}
	}
	return nil
}

func linkedDigests(tx *sql.Tx, seq int64) ([]string, error) {
	rows, err := tx.Query("SELECT digest FROM "+attachSeqStore+" WHERE seq=?", seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var digests []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

func digestOrphaned(tx *sql.Tx, digest string) (bool, error) {
	var refs int
	err := tx.QueryRow(
		"SELECT count(*) AS cnt FROM "+attachSeqStore+" WHERE digest=?",
		digest,
	).Scan(&refs)
	if err != nil {
		return false, err
	}
	return refs == 0, nil
}
