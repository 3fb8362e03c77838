package store

import (
	"database/sql"
	"strconv"

	"github.com/tansell/docsql/internal/doc"
)

// AllDocsOptions shape a primary-index scan. Optional scalars are
// pointers so an explicit zero value stays distinguishable from unset.
type AllDocsOptions struct {
	// StartKey and EndKey bound the scan, both inclusive unless
	// ExclusiveEnd is set. With Descending the scan runs high to low and
	// StartKey is the high bound.
	StartKey *string
	EndKey   *string
	// Key restricts the scan to one id.
	Key *string
	// Keys switches to point-lookup mode: one row per requested key, in
	// request order, including tombstones and not-found markers. Nil
	// means range mode; an empty non-nil slice yields no rows.
	Keys []string

	ExclusiveEnd bool
	Descending   bool
	// Limit caps the returned rows; nil means unlimited. A zero limit
	// still returns one row, matching the scan's CouchDB lineage.
	Limit *int
	Skip  int

	IncludeDocs bool
	Conflicts   bool
	Attachments bool
	UpdateSeq   bool
}

// AllDocsRow is one scan result. Deleted and Missing rows only appear in
// Keys mode; range scans skip tombstones entirely.
type AllDocsRow struct {
	ID      string
	Key     string
	Rev     string
	Deleted bool
	Missing bool
	Doc     doc.Body
}

// AllDocsResult is a scan result page. UpdateSeq is -1 unless requested.
type AllDocsResult struct {
	TotalRows int64
	Offset    int
	UpdateSeq int64
	Rows      []AllDocsRow
}

// AllDocs scans the primary index over winning revisions in id order.
// TotalRows always counts every live document in the database, not the
// page.
func (s *Store) AllDocs(opts AllDocsOptions) (*AllDocsResult, error) {
	res := &AllDocsResult{Offset: opts.Skip, UpdateSeq: -1}
	err := s.queue.Read(func(tx *sql.Tx) error {
		total, err := countDocs(tx)
		if err != nil {
			return err
		}
		res.TotalRows = total
		if opts.UpdateSeq {
			seq, err := maxSeq(tx)
			if err != nil {
				return err
			}
			res.UpdateSeq = seq
		}
		if opts.Keys != nil {
			return allDocsKeys(tx, opts, res)
		}
		return allDocsRange(tx, opts, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func allDocsRange(tx *sql.Tx, opts AllDocsOptions, res *AllDocsResult) error {
	where := []string{bySeqStore + ".deleted=0"}
	var args []any
	switch {
	case opts.Key != nil:
		where = append(where, docStore+".id=?")
		args = append(args, *opts.Key)
	default:
		startOp, endOp := ">=", "<="
		if opts.ExclusiveEnd {
			endOp = "<"
		}
		if opts.Descending {
			startOp, endOp = "<=", ">="
			if opts.ExclusiveEnd {
				endOp = ">"
			}
		}
		if opts.StartKey != nil {
			where = append(where, docStore+".id"+startOp+"?")
			args = append(args, *opts.StartKey)
		}
		if opts.EndKey != nil {
			where = append(where, docStore+".id"+endOp+"?")
			args = append(args, *opts.EndKey)
		}
	}

	order := docStore + ".id ASC"
	if opts.Descending {
		order = docStore + ".id DESC"
	}

	limit := -1
	if opts.Limit != nil {
		limit = *opts.Limit
		if limit == 0 {
			limit = 1
		}
	}
	query := selectStmt(selectDocs, docStore+" JOIN "+bySeqStore, docBySeqJoin, where, order) +
		" LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(opts.Skip)

	rows, err := tx.Query(query, args...)
	if err != nil {
		return err
	}
	scanned, err := scanDocRows(rows)
	if err != nil {
		return err
	}

	for _, r := range scanned {
		row := AllDocsRow{ID: r.meta.ID, Key: r.meta.ID, Rev: r.rev}
		if opts.IncludeDocs {
			body, err := readRowBody(tx, r, opts.Conflicts, opts.Attachments)
			if err != nil {
				return err
			}
			row.Doc = body
		}
		res.Rows = append(res.Rows, row)
	}
	return nil
}

// allDocsKeys resolves an explicit key list: every requested key gets a
// row, in request order (reversed when Descending), with tombstones and
// unknown ids marked rather than dropped. Skip and Limit apply once to
// the assembled list, not per lookup chunk.
func allDocsKeys(tx *sql.Tx, opts AllDocsOptions, res *AllDocsResult) error {
	byID := map[string]docRow{}
	keys := opts.Keys
	for len(keys) > 0 {
		chunk := keys
		if len(chunk) > keyChunkSize {
			chunk = chunk[:keyChunkSize]
		}
		keys = keys[len(chunk):]

		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		query := selectStmt(
			selectDocs,
			docStore+" JOIN "+bySeqStore,
			docBySeqJoin,
			[]string{docStore + ".id IN " + qMarks(len(chunk))},
			"",
		)
		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		scanned, err := scanDocRows(rows)
		if err != nil {
			return err
		}
		for _, r := range scanned {
			byID[r.meta.ID] = r
		}
	}

	ordered := opts.Keys
	if opts.Descending {
		ordered = make([]string, len(opts.Keys))
		for i, k := range opts.Keys {
			ordered[len(opts.Keys)-1-i] = k
		}
	}

	var out []AllDocsRow
	for _, key := range ordered {
		r, ok := byID[key]
		if !ok {
			out = append(out, AllDocsRow{Key: key, Missing: true})
			continue
		}
		row := AllDocsRow{ID: r.meta.ID, Key: key, Rev: r.rev, Deleted: r.deleted}
		if opts.IncludeDocs && !r.deleted {
			body, err := readRowBody(tx, r, opts.Conflicts, opts.Attachments)
			if err != nil {
				return err
			}
			row.Doc = body
		}
		out = append(out, row)
	}

	if opts.Skip > 0 {
		if opts.Skip >= len(out) {
			out = nil
		} else {
			out = out[opts.Skip:]
		}
	}
	if opts.Limit != nil {
		limit := *opts.Limit
		if limit == 0 {
			limit = 1
		}
		if limit >= 0 && limit < len(out) {
			out = out[:limit]
		}
	}
	res.Rows = out
	return nil
}
