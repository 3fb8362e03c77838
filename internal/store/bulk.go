package store

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/tansell/docsql/internal/doc"
	"github.com/tansell/docsql/internal/revtree"
)

// keyChunkSize caps the number of bound variables per statement; SQLite
// rejects queries with more than 999.
const keyChunkSize = 999

// WriteResult reports the outcome of one slot in a bulk write. Slots
// fail independently: a conflict in one leaves the rest committed.
type WriteResult struct {
	ID  string
	Rev string
	Err error
}

// OK reports whether the slot was written.
func (r WriteResult) OK() bool { return r.Err == nil }

// BulkDocs writes a batch of documents in one transaction, in batch
// order. With newEdits set each body is a fresh edit of its _rev parent;
// otherwise bodies carry pre-resolved revision histories (the replication
// path) and are grafted into the stored trees as-is.
//
// Batch-level failures (malformed documents, malformed attachments, a
// stub referencing an unknown digest) abort the whole batch and return an
// error. Everything else is reported per slot.
func (s *Store) BulkDocs(docs []doc.Body, newEdits bool) ([]WriteResult, error) {
	infos := make([]*revtree.DocInfo, len(docs))
	locals := make([]doc.Body, len(docs))
	for i, body := range docs {
		if body == nil {
			return nil, errors.New("bulk write: nil document body")
		}
		if doc.IsLocalID(body.ID()) {
			locals[i] = body
			continue
		}
		info, err := s.parseDoc(body, newEdits)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	if err := preprocessAttachments(infos); err != nil {
		return nil, err
	}

	s.log.Debug("bulk write", "db", s.name, "docs", len(docs), "new_edits", newEdits)

	results := make([]WriteResult, len(docs))
	err := s.queue.Write(func(tx *sql.Tx) error {
		if err := verifyAttachments(tx, infos); err != nil {
			return err
		}
		fetched, err := fetchExistingDocs(tx, infos)
		if err != nil {
			return err
		}

		for i, body := range locals {
			if body == nil {
				continue
			}
			results[i] = writeLocalTx(tx, body)
		}

		write := func(info *revtree.DocInfo, winningRev string, newDeleted, isUpdate bool, idx int) error {
			return s.writeDoc(tx, info, winningRev, newDeleted, isUpdate, fetched, results, idx)
		}
		onError := func(idx int, err error) {
			if errors.Is(err, revtree.ErrConflict) {
				err = errConflict()
			}
			results[idx] = WriteResult{ID: infos[idx].ID, Err: err}
		}
		return revtree.ProcessDocs(infos, fetched, newEdits, s.revsLimit, write, onError)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(s.name)
	return results, nil
}

// Put writes one new edit. The body's _rev names the parent revision;
// leaving it empty creates the document.
func (s *Store) Put(body doc.Body) (WriteResult, error) {
	results, err := s.BulkDocs([]doc.Body{body}, true)
	if err != nil {
		return WriteResult{}, err
	}
	return results[0], nil
}

// Delete writes a tombstone for the given revision of a document.
func (s *Store) Delete(id, rev string) (WriteResult, error) {
	return s.Put(doc.Body{
		doc.FieldID:      id,
		doc.FieldRev:     rev,
		doc.FieldDeleted: true,
	})
}

// fetchExistingDocs prefetches the stored metadata for every document id
// referenced by the batch, chunked to stay under the bound-variable cap.
func fetchExistingDocs(tx *sql.Tx, infos []*revtree.DocInfo) (map[string]*revtree.Metadata, error) {
	var ids []string
	seen := map[string]bool{}
	for _, info := range infos {
		if info == nil || seen[info.ID] {
			continue
		}
		seen[info.ID] = true
		ids = append(ids, info.ID)
	}

	fetched := make(map[string]*revtree.Metadata, len(ids))
	for len(ids) > 0 {
		chunk := ids
		if len(chunk) > keyChunkSize {
			chunk = chunk[:keyChunkSize]
		}
		ids = ids[len(chunk):]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := tx.Query(
			"SELECT json FROM "+docStore+" WHERE id IN "+qMarks(len(chunk)),
			args...,
		)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return nil, err
			}
			meta, err := unmarshalMetadata(raw)
			if err != nil {
				rows.Close()
				return nil, err
			}
			fetched[meta.ID] = meta
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return fetched, nil
}

// writeDoc persists one resolved edit: attachment bodies, the revision
// row, digest links, pruned ancestors, then the document row pointing at
// the new winning revision.
func (s *Store) writeDoc(tx *sql.Tx, info *revtree.DocInfo, winningRev string, newDeleted, isUpdate bool, fetched map[string]*revtree.Metadata, results []WriteResult, idx int) error {
	meta := info.Metadata

	atts, err := doc.Attachments(info.Data)
	if err != nil {
		return err
	}
	if len(atts) > 0 {
		gen, _, err := doc.ParseRev(meta.Rev)
		if err != nil {
			return err
		}
		for _, att := range atts {
			if !att.Stub {
				if err := saveAttachment(tx, att.Digest, att.Data); err != nil {
					return err
				}
				att.Data = nil
				att.Stub = true
			}
			if att.RevPos == 0 {
				att.RevPos = gen
			}
		}
		doc.SetAttachments(info.Data, atts)
	}

	data, err := doc.MarshalBody(info.Data)
	if err != nil {
		return err
	}
	deleted := 0
	if newDeleted {
		deleted = 1
	}
	seq, err := insertRevision(tx, meta.ID, meta.Rev, data, deleted)
	if err != nil {
		return err
	}
	meta.Seq = seq

	if err := insertAttachmentLinks(tx, atts, seq); err != nil {
		return err
	}

	revsToCompact := info.StemmedRevs
	if isUpdate && s.autoCompaction {
		revsToCompact = append(revsToCompact, meta.Tree.CompactCandidates()...)
	}
	if len(revsToCompact) > 0 {
		meta.Tree.MarkMissing(revsToCompact)
		if err := compactRevs(tx, meta.ID, revsToCompact); err != nil {
			return err
		}
	}

	metaJSON, err := marshalMetadata(meta)
	if err != nil {
		return err
	}
	if isUpdate {
		_, err = tx.Exec(
			"UPDATE "+docStore+" SET json=?, max_seq=?, winningseq="+
				"(SELECT seq FROM "+bySeqStore+" WHERE doc_id=? AND rev=?) WHERE id=?",
			metaJSON, seq, meta.ID, winningRev, meta.ID,
		)
	} else {
		_, err = tx.Exec(
			"INSERT INTO "+docStore+" (id, winningseq, max_seq, json) VALUES (?,?,?,?)",
			meta.ID, seq, seq, metaJSON,
		)
	}
	if err != nil {
		return err
	}

	fetched[meta.ID] = meta
	results[idx] = WriteResult{ID: meta.ID, Rev: meta.Rev}
	return nil
}

// insertRevision stores one revision body. A constraint hit on the unique
// (doc_id, rev) index means the revision was written before (a replayed
// replication batch); the stored row is refreshed and its seq reused.
func insertRevision(tx *sql.Tx, id, rev, body string, deleted int) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO "+bySeqStore+" (doc_id, rev, json, deleted) VALUES (?,?,?,?)",
		id, rev, body, deleted,
	)
	if err == nil {
		return res.LastInsertId()
	}
	var serr sqlite3.Error
	if !errors.As(err, &serr) || serr.Code != sqlite3.ErrConstraint {
		return 0, err
	}

	var seq int64
	err = tx.QueryRow(
		"SELECT seq FROM "+bySeqStore+" WHERE doc_id=? AND rev=?",
		id, rev,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(
		"UPDATE "+bySeqStore+" SET json=?, deleted=? WHERE doc_id=? AND rev=?",
		body, deleted, id, rev,
	)
	return seq, err
}
