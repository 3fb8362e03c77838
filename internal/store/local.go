package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/tansell/docsql/internal/doc"
)

// Local documents live outside the revision store: no tree, no sequence
// number, never replicated and never visible in scans or the change feed.
// Their _rev is a plain "0-N" write counter used for compare-and-swap.

// GetLocal reads a local document by id.
func (s *Store) GetLocal(id string) (doc.Body, error) {
	var body doc.Body
	err := s.queue.Read(func(tx *sql.Tx) error {
		b, err := getLocalTx(tx, id)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// PutLocal writes a local document. The body's _rev must match the stored
// counter (or be absent for a fresh document); a mismatch is a conflict.
func (s *Store) PutLocal(body doc.Body) (WriteResult, error) {
	if !doc.IsLocalID(body.ID()) {
		return WriteResult{}, fmt.Errorf("local write: id %q lacks the %s prefix", body.ID(), doc.LocalPrefix)
	}
	var res WriteResult
	err := s.queue.Write(func(tx *sql.Tx) error {
		res = writeLocalTx(tx, body)
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	return res, res.Err
}

// RemoveLocal deletes a local document. The rev must match the stored
// counter; an unknown id or stale rev reports missing.
func (s *Store) RemoveLocal(id, rev string) (WriteResult, error) {
	return s.PutLocal(doc.Body{
		doc.FieldID:      id,
		doc.FieldRev:     rev,
		doc.FieldDeleted: true,
	})
}

func getLocalTx(tx *sql.Tx, id string) (doc.Body, error) {
	var rev, raw string
	err := tx.QueryRow(
		"SELECT rev, json FROM "+localStore+" WHERE id=?",
		id,
	).Scan(&rev, &raw)
	if err == sql.ErrNoRows {
		return nil, errMissing()
	}
	if err != nil {
		return nil, err
	}
	return doc.UnmarshalBody(raw, id, rev)
}

// writeLocalTx routes a local-document slot inside a write transaction.
// Failures stay in the returned slot so the surrounding batch commits.
func writeLocalTx(tx *sql.Tx, body doc.Body) WriteResult {
	id := body.ID()
	if body.Deleted() {
		if err := removeLocalTx(tx, id, body.Rev()); err != nil {
			return WriteResult{ID: id, Err: err}
		}
		return WriteResult{ID: id, Rev: "0-0"}
	}
	rev, err := putLocalTx(tx, body)
	if err != nil {
		return WriteResult{ID: id, Err: err}
	}
	return WriteResult{ID: id, Rev: rev}
}

func putLocalTx(tx *sql.Tx, body doc.Body) (string, error) {
	id := body.ID()
	oldRev := body.Rev()
	newRev, err := nextLocalRev(oldRev)
	if err != nil {
		return "", err
	}
	raw, err := doc.MarshalBody(body)
	if err != nil {
		return "", err
	}

	if oldRev != "" {
		res, err := tx.Exec(
			"UPDATE "+localStore+" SET rev=?, json=? WHERE id=? AND rev=?",
			newRev, raw, id, oldRev,
		)
		if err != nil {
			return "", err
		}
		changed, err := res.RowsAffected()
		if err != nil {
			return "", err
		}
		if changed == 0 {
			return "", errConflict()
		}
		return newRev, nil
	}

	_, err = tx.Exec(
		"INSERT INTO "+localStore+" (id, rev, json) VALUES (?,?,?)",
		id, newRev, raw,
	)
	if err != nil {
		// The id already exists with some counter; a revless write
		// against it is a stale write.
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return "", errConflict()
		}
		return "", err
	}
	return newRev, nil
}

func removeLocalTx(tx *sql.Tx, id, rev string) error {
	res, err := tx.Exec(
		"DELETE FROM "+localStore+" WHERE id=? AND rev=?",
		id, rev,
	)
	if err != nil {
		return err
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if changed == 0 {
		return errMissing()
	}
	return nil
}

// nextLocalRev bumps the "0-N" write counter; "" starts at 0-1.
func nextLocalRev(rev string) (string, error) {
	if rev == "" {
		return "0-1", nil
	}
	gen, count, found := strings.Cut(rev, "-")
	if !found || gen != "0" {
		return "", fmt.Errorf("malformed local revision %q", rev)
	}
	n, err := strconv.Atoi(count)
	if err != nil {
		return "", fmt.Errorf("malformed local revision %q", rev)
	}
	return "0-" + strconv.Itoa(n+1), nil
}
