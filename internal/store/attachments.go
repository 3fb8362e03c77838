package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/tansell/docsql/internal/doc"
	"github.com/tansell/docsql/internal/revtree"
)

// preprocessAttachments normalizes every attachment in the batch before
// the database transaction opens: payloads are decoded, lengths and
// content digests computed. A malformed attachment rejects the whole
// batch.
func preprocessAttachments(infos []*revtree.DocInfo) error {
	for _, info := range infos {
		if info == nil {
			continue
		}
		atts, err := doc.Attachments(info.Data)
		if err != nil {
			return err
		}
		if len(atts) == 0 {
			continue
		}
		for name, att := range atts {
			if att.Stub {
				if att.Digest == "" {
					return fmt.Errorf("stub attachment %q has no digest", name)
				}
				continue
			}
			if att.Data == nil {
				return fmt.Errorf("attachment %q has no data and is not a stub", name)
			}
			att.Length = len(att.Data)
			if att.Digest == "" {
				att.Digest = doc.AttachmentDigest(att.Data)
			}
		}
		doc.SetAttachments(info.Data, atts)
	}
	return nil
}

// verifyAttachments checks that every stub digest in the batch exists in
// the attachment store. A miss is a batch-level precondition failure: the
// transaction aborts and no writes apply.
func verifyAttachments(tx *sql.Tx, infos []*revtree.DocInfo) error {
	seen := map[string]bool{}
	for _, info := range infos {
		if info == nil {
			continue
		}
		atts, err := doc.Attachments(info.Data)
		if err != nil {
			return err
		}
		for _, att := range atts {
			if att.Stub && !seen[att.Digest] {
				seen[att.Digest] = true
				var count int
				err := tx.QueryRow(
					"SELECT count(*) AS cnt FROM "+attachStore+" WHERE digest=?",
					att.Digest,
				).Scan(&count)
				if err != nil {
					return err
				}
				if count == 0 {
					return errMissingStub(att.Digest)
				}
			}
		}
	}
	return nil
}

// saveAttachment persists attachment bytes content-addressed by digest.
// Re-saving an existing digest is a no-op.
func saveAttachment(tx *sql.Tx, digest string, data []byte) error {
	var existing string
	err := tx.QueryRow("SELECT digest FROM "+attachStore+" WHERE digest=?", digest).Scan(&existing)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = tx.Exec(
		"INSERT INTO "+attachStore+" (digest, body, escaped) VALUES (?,?,0)",
		digest, data,
	)
	return err
}

// insertAttachmentLinks associates every attachment digest of a revision
// with its seq. INSERT OR IGNORE keeps replayed writes idempotent against
// the unique (digest, seq) index.
func insertAttachmentLinks(tx *sql.Tx, atts map[string]*doc.Attachment, seq int64) error {
	for _, att := range atts {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO "+attachSeqStore+" (digest, seq) VALUES (?,?)",
			att.Digest, seq,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetAttachment returns the stored bytes for a digest, base64-encoded
// when asBase64 is set. An unknown digest reports a missing stub
// attachment.
func (s *Store) GetAttachment(digest string, asBase64 bool) ([]byte, error) {
	var data []byte
	err := s.queue.Read(func(tx *sql.Tx) error {
		d, err := getAttachmentTx(tx, digest, asBase64)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func getAttachmentTx(tx *sql.Tx, digest string, asBase64 bool) ([]byte, error) {
	var (
		escaped int
		body    []byte
	)
	err := tx.QueryRow(
		"SELECT escaped, body AS body FROM "+attachStore+" WHERE digest=?",
		digest,
	).Scan(&escaped, &body)
	if err == sql.ErrNoRows {
		return nil, errMissingStub(digest)
	}
	if err != nil {
		return nil, err
	}
	if asBase64 {
		return []byte(base64.StdEncoding.EncodeToString(body)), nil
	}
	return body, nil
}

// annotateAttachments rewrites a read body's attachments as stubs, or -
// when both attachments and include_docs were requested - inlines the
// stored bytes via the same read path as point attachment fetches.
func annotateAttachments(tx *sql.Tx, body doc.Body, inline bool) error {
	atts, err := doc.Attachments(body)
	if err != nil {
		return err
	}
	if len(atts) == 0 {
		return nil
	}
	for _, att := range atts {
		if !inline {
			att.Stub = true
			att.Data = nil
			continue
		}
		data, err := getAttachmentTx(tx, att.Digest, false)
		if err != nil {
			return err
		}
		att.Stub = false
		att.Data = data
	}
	doc.SetAttachments(body, atts)
	return nil
}
