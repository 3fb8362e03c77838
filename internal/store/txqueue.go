package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

// unit is one queued unit of work. readOnly is a semantic label reserved
// for future read parallelism; scheduling treats both kinds identically.
type unit struct {
	readOnly bool
	fn       func(tx *sql.Tx) error
	done     chan error
}

// queue serializes all units of work against one physical connection.
// It is an explicit two-state machine: idle (no worker) and running (one
// worker draining pending in FIFO order). At most one unit executes at a
// time; a failing unit reports to its submitter and never stalls the
// rest.
type queue struct {
	db  *sql.DB
	log *slog.Logger

	mu      sync.Mutex
	pending []*unit
	running bool
}

func newQueue(db *sql.DB, log *slog.Logger) *queue {
	return &queue{db: db, log: log}
}

// push submits a unit and blocks until it has run to completion.
func (q *queue) push(readOnly bool, fn func(tx *sql.Tx) error) error {
	u := &unit{readOnly: readOnly, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, u)
	start := !q.running
	if start {
		q.running = true
	}
	q.mu.Unlock()

	if start {
		go q.run()
	}
	return <-u.done
}

// Write submits a read-write unit.
func (q *queue) Write(fn func(tx *sql.Tx) error) error {
	return q.push(false, fn)
}

// Read submits a read-only unit. Still strictly serialized: the engine is
// not trusted with concurrent cursors on one connection.
func (q *queue) Read(fn func(tx *sql.Tx) error) error {
	return q.push(true, fn)
}

func (q *queue) run() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		u := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		u.done <- q.exec(u)
	}
}

// exec runs one unit in its own transaction. Unit errors and panics roll
// the transaction back; either way the queue advances to the next unit.
func (q *queue) exec(u *unit) error {
	q.log.Debug("transaction start", "readonly", u.readOnly)

	tx, err := q.db.Begin()
	if err != nil {
		return storageErr(err)
	}
	if err := runUnit(u.fn, tx); err != nil {
		tx.Rollback()
		q.log.Debug("transaction rolled back", "readonly", u.readOnly, "err", err)
		return storageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(err)
	}
	q.log.Debug("transaction committed", "readonly", u.readOnly)
	return nil
}

// runUnit isolates unit panics so a misbehaving unit cannot poison the
// queue.
func runUnit(fn func(tx *sql.Tx) error, tx *sql.Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in transaction: %v", p)
		}
	}()
	return fn(tx)
}
