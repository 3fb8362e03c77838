package store

import (
	"database/sql"

	"github.com/tansell/docsql/internal/doc"
	"github.com/tansell/docsql/internal/revtree"
)

// GetOptions select which revision of a document a point read returns.
type GetOptions struct {
	// Rev requests an explicit revision instead of the winning one.
	Rev string
	// Latest resolves Rev to the current leaf of its branch first.
	Latest bool
	// Attachments inlines attachment bytes instead of returning stubs.
	Attachments bool
}

// GetResult is a point-read result: the revision body with _id/_rev
// reattached, plus the document's tree metadata.
type GetResult struct {
	Body     doc.Body
	Rev      string
	Seq      int64
	Metadata *revtree.Metadata
}

// Get reads one document. Requesting a document whose winning revision is
// a tombstone yields a deleted error, distinct from missing; an explicit
// Rev bypasses the tombstone check.
func (s *Store) Get(id string, opts GetOptions) (*GetResult, error) {
	var res *GetResult
	err := s.queue.Read(func(tx *sql.Tx) error {
		r, err := s.getTx(tx, id, opts)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) getTx(tx *sql.Tx, id string, opts GetOptions) (*GetResult, error) {
	if opts.Rev != "" && opts.Latest {
		resolved, err := latestRev(tx, id, opts.Rev)
		if err != nil {
			return nil, err
		}
		return s.getTx(tx, id, GetOptions{Rev: resolved, Attachments: opts.Attachments})
	}

	var query string
	var args []any
	if opts.Rev == "" {
		query = selectStmt(
			selectDocs,
			docStore+" JOIN "+bySeqStore,
			docBySeqJoin,
			[]string{docStore + ".id=?"},
			"",
		)
		args = []any{id}
	} else {
		query = selectStmt(
			selectDocs,
			docStore+" JOIN "+bySeqStore,
			docStore+".id="+bySeqStore+".doc_id",
			[]string{bySeqStore + ".doc_id=?", bySeqStore + ".rev=?"},
			"",
		)
		args = []any{id, opts.Rev}
	}

	var (
		seq     int64
		deleted int
		data    string
		rev     string
		metaStr string
	)
	err := tx.QueryRow(query, args...).Scan(&seq, &deleted, &data, &rev, &metaStr)
	if err == sql.ErrNoRows {
		return nil, errMissing()
	}
	if err != nil {
		return nil, err
	}

	metadata, err := unmarshalMetadata(metaStr)
	if err != nil {
		return nil, err
	}
	if deleted != 0 && opts.Rev == "" {
		return nil, errDeleted()
	}
	body, err := doc.UnmarshalBody(data, metadata.ID, rev)
	if err != nil {
		return nil, err
	}
	if opts.Attachments {
		if err := annotateAttachments(tx, body, true); err != nil {
			return nil, err
		}
	}
	return &GetResult{Body: body, Rev: rev, Seq: seq, Metadata: metadata}, nil
}

// latestRev resolves rev to the current leaf of its branch using the
// stored revision tree - one extra round trip before the actual read.
func latestRev(tx *sql.Tx, id, rev string) (string, error) {
	metadata, err := fetchMetadata(tx, id)
	if err != nil {
		return "", err
	}
	resolved := metadata.Tree.Latest(rev)
	if resolved == "" {
		return "", errMissing()
	}
	return resolved, nil
}

func fetchMetadata(tx *sql.Tx, id string) (*revtree.Metadata, error) {
	var metaStr string
	err := tx.QueryRow("SELECT json AS metadata FROM "+docStore+" WHERE id = ?", id).Scan(&metaStr)
	if err == sql.ErrNoRows {
		return nil, errMissing()
	}
	if err != nil {
		return nil, err
	}
	return unmarshalMetadata(metaStr)
}

// GetRevisionTree returns the stored revision tree for a document.
func (s *Store) GetRevisionTree(id string) (revtree.Tree, error) {
	var tree revtree.Tree
	err := s.queue.Read(func(tx *sql.Tx) error {
		metadata, err := fetchMetadata(tx, id)
		if err != nil {
			return err
		}
		tree = metadata.Tree
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func maxSeq(tx *sql.Tx) (int64, error) {
	var seq sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(seq) AS seq FROM " + bySeqStore).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// countDocs counts live documents: those whose winning revision is not a
// tombstone.
func countDocs(tx *sql.Tx) (int64, error) {
	query := selectStmt(
		"COUNT("+docStore+".id) AS num",
		docStore+" JOIN "+bySeqStore,
		docBySeqJoin,
		[]string{bySeqStore + ".deleted=0"},
		"",
	)
	var count int64
	if err := tx.QueryRow(query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
