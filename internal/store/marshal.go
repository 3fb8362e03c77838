package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tansell/docsql/internal/doc"
	"github.com/tansell/docsql/internal/revtree"
)

func marshalMetadata(m *revtree.Metadata) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (*revtree.Metadata, error) {
	var m revtree.Metadata
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if m.Tree == nil {
		m.Tree = revtree.Tree{}
	}
	return &m, nil
}

// selectStmt assembles the shared SELECT shape used by reads, scans and
// the change feed.
func selectStmt(selector, from, joiner string, where []string, orderBy string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selector)
	b.WriteString(" FROM ")
	b.WriteString(from)
	if joiner != "" {
		b.WriteString(" ON ")
		b.WriteString(joiner)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	return b.String()
}

// selectDocs pulls a winning (or explicit) revision row together with its
// document metadata.
const selectDocs = bySeqStore + ".seq AS seq, " +
	bySeqStore + ".deleted AS deleted, " +
	bySeqStore + ".json AS data, " +
	bySeqStore + ".rev AS rev, " +
	docStore + ".json AS metadata"

// selectChanges is the feed shape: the winning revision row, keyed by
// the document's latest change sequence rather than the winning row's
// own seq.
const selectChanges = docStore + ".max_seq AS seq, " +
	bySeqStore + ".deleted AS deleted, " +
	bySeqStore + ".json AS data, " +
	bySeqStore + ".rev AS rev, " +
	docStore + ".json AS metadata"

// docBySeqJoin joins each document to its winning revision row.
const docBySeqJoin = bySeqStore + ".seq = " + docStore + ".winningseq"

// docRow is one scanned selectDocs result row.
type docRow struct {
	seq     int64
	deleted bool
	data    string
	rev     string
	meta    *revtree.Metadata
}

func scanDocRows(rows *sql.Rows) ([]docRow, error) {
	defer rows.Close()
	var out []docRow
	for rows.Next() {
		var (
			seq     int64
			deleted int
			data    string
			rev     string
			metaStr string
		)
		if err := rows.Scan(&seq, &deleted, &data, &rev, &metaStr); err != nil {
			return nil, err
		}
		meta, err := unmarshalMetadata(metaStr)
		if err != nil {
			return nil, err
		}
		out = append(out, docRow{seq: seq, deleted: deleted != 0, data: data, rev: rev, meta: meta})
	}
	return out, rows.Err()
}

// readRowBody materializes a scanned row's document body, optionally
// annotated with the losing leaves and inlined attachment bytes.
func readRowBody(tx *sql.Tx, r docRow, conflicts, attachments bool) (doc.Body, error) {
	body, err := doc.UnmarshalBody(r.data, r.meta.ID, r.rev)
	if err != nil {
		return nil, err
	}
	if conflicts {
		if c := r.meta.Tree.Conflicts(); len(c) > 0 {
			body["_conflicts"] = c
		}
	}
	if err := annotateAttachments(tx, body, attachments); err != nil {
		return nil, err
	}
	return body, nil
}
