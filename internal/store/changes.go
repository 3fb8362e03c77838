package store

import (
	"database/sql"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/tansell/docsql/internal/doc"
)

// ChangesOptions shape a change-feed read.
type ChangesOptions struct {
	// Since skips everything at or below this sequence number.
	Since int64
	// Limit caps the returned changes; nil means unlimited. A zero limit
	// still returns one change, matching the feed's CouchDB lineage.
	Limit *int
	// Descending returns newest first, always from the top of the feed;
	// Since does not apply.
	Descending bool
	// DocIDs restricts the feed to the given documents.
	DocIDs []string
	// Filter drops changes whose winning body it rejects. Only accepted
	// changes count against Limit.
	Filter func(doc.Body) bool

	IncludeDocs bool
	Conflicts   bool
	Attachments bool
}

// Change is one entry in the feed: a document's winning revision at its
// latest sequence number.
type Change struct {
	ID      string
	Seq     int64
	Rev     string
	Deleted bool
	Doc     doc.Body
}

// ChangesResult is a one-shot feed read. LastSeq is the highest sequence
// scanned, or Since when nothing changed.
type ChangesResult struct {
	Results []Change
	LastSeq int64
}

// Changes reads the change feed once. Each document appears at most
// once, at its winning revision, ordered by sequence number.
func (s *Store) Changes(opts ChangesOptions) (*ChangesResult, error) {
	res := &ChangesResult{LastSeq: opts.Since}
	err := s.queue.Read(func(tx *sql.Tx) error {
		return s.changesTx(tx, opts, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) changesTx(tx *sql.Tx, opts ChangesOptions, res *ChangesResult) error {
	since := opts.Since
	if opts.Descending {
		since = 0
	}

	// The feed cursor is document-store.max_seq: every write to a
	// document bumps it, including writes to losing branches that leave
	// winningseq alone. The body still joins through winningseq.
	order := docStore + ".max_seq ASC"
	if opts.Descending {
		order = docStore + ".max_seq DESC"
	}
	limit := -1
	if opts.Limit != nil {
		limit = *opts.Limit
		if limit == 0 {
			limit = 1
		}
	}

	var scanned []docRow
	if len(opts.DocIDs) > 0 {
		for start := 0; start < len(opts.DocIDs); start += keyChunkSize - 1 {
			chunk := opts.DocIDs[start:min(start+keyChunkSize-1, len(opts.DocIDs))]
			where := []string{docStore + ".max_seq > ?", docStore + ".id IN " + qMarks(len(chunk))}
			args := make([]any, 0, len(chunk)+1)
			args = append(args, since)
			for _, id := range chunk {
				args = append(args, id)
			}
			rows, err := tx.Query(selectStmt(selectChanges, docStore+" JOIN "+bySeqStore, docBySeqJoin, where, order), args...)
			if err != nil {
				return err
			}
			part, err := scanDocRows(rows)
			if err != nil {
				return err
			}
			scanned = append(scanned, part...)
		}
		// Chunked results arrive grouped per chunk; restore feed order.
		sort.Slice(scanned, func(i, j int) bool {
			if opts.Descending {
				return scanned[i].seq > scanned[j].seq
			}
			return scanned[i].seq < scanned[j].seq
		})
	} else {
		where := []string{docStore + ".max_seq > ?"}
		query := selectStmt(selectChanges, docStore+" JOIN "+bySeqStore, docBySeqJoin, where, order)
		// With a filter the limit counts accepted changes, so it cannot
		// be pushed into SQL.
		if limit >= 0 && opts.Filter == nil {
			query += " LIMIT " + strconv.Itoa(limit)
		}
		rows, err := tx.Query(query, since)
		if err != nil {
			return err
		}
		scanned, err = scanDocRows(rows)
		if err != nil {
			return err
		}
	}

	for _, r := range scanned {
		if r.seq > res.LastSeq {
			res.LastSeq = r.seq
		}
		if opts.Filter != nil || opts.IncludeDocs {
			body, err := readRowBody(tx, r, opts.Conflicts, opts.Attachments)
			if err != nil {
				return err
			}
			if opts.Filter != nil && !opts.Filter(body) {
				continue
			}
			change := Change{ID: r.meta.ID, Seq: r.seq, Rev: r.rev, Deleted: r.deleted}
			if opts.IncludeDocs {
				change.Doc = body
			}
			res.Results = append(res.Results, change)
		} else {
			res.Results = append(res.Results, Change{ID: r.meta.ID, Seq: r.seq, Rev: r.rev, Deleted: r.deleted})
		}
		if limit >= 0 && len(res.Results) >= limit {
			break
		}
	}
	return nil
}

// changesFeed is a live subscription: each database-change notification
// triggers a catch-up poll from the last delivered sequence. Overlapping
// notifications coalesce into a single trailing poll.
type changesFeed struct {
	store    *Store
	opts     ChangesOptions
	onChange func(Change)
	onError  func(error)

	mu        sync.Mutex
	since     int64
	polling   bool
	pending   bool
	cancelled bool
}

// ListenChanges subscribes to the live change feed. Every write commits,
// then its changes are delivered to onChange in sequence order, starting
// after opts.Since. Poll errors go to onError and the subscription stays
// live. The returned cancel is idempotent.
//
// Limit and Descending do not apply to live feeds and are ignored.
func (s *Store) ListenChanges(opts ChangesOptions, onChange func(Change), onError func(error)) (cancel func()) {
	opts.Limit = nil
	opts.Descending = false
	feed := &changesFeed{
		store:    s,
		opts:     opts,
		onChange: onChange,
		onError:  onError,
		since:    opts.Since,
	}
	id := uuid.NewString()
	s.notifier.AddListener(s.name, id, feed.kick)
	s.log.Debug("change feed subscribed", "db", s.name, "listener", id, "since", opts.Since)

	feed.kick()
	return func() {
		s.notifier.RemoveListener(s.name, id)
		feed.mu.Lock()
		feed.cancelled = true
		feed.mu.Unlock()
	}
}

func (f *changesFeed) kick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelled {
		return
	}
	if f.polling {
		f.pending = true
		return
	}
	f.polling = true
	go f.poll()
}

func (f *changesFeed) poll() {
	for {
		f.mu.Lock()
		opts := f.opts
		opts.Since = f.since
		f.mu.Unlock()

		res, err := f.store.Changes(opts)
		if err != nil {
			if f.onError != nil {
				f.onError(err)
			}
		} else {
			f.deliver(res)
		}

		f.mu.Lock()
		if f.pending && !f.cancelled {
			f.pending = false
			f.mu.Unlock()
			continue
		}
		f.polling = false
		f.mu.Unlock()
		return
	}
}

func (f *changesFeed) deliver(res *ChangesResult) {
	for _, c := range res.Results {
		f.mu.Lock()
		cancelled := f.cancelled
		f.mu.Unlock()
		if cancelled {
			return
		}
		f.onChange(c)
	}
	f.mu.Lock()
	if res.LastSeq > f.since {
		f.since = res.LastSeq
	}
	f.mu.Unlock()
}
