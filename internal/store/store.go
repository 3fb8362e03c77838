package store

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tansell/docsql/internal/doc"
	"github.com/tansell/docsql/internal/revtree"
)

// Options configure a database at open time. They are consumed once;
// changing them later has no effect on an open handle.
type Options struct {
	// Name is the logical database name; the backing file is named
	// "<Name>.sqlite" under Dir.
	Name string
	// Dir is the directory holding the database file. Defaults to ".".
	Dir string
	// RevsLimit bounds how many ancestors each revision branch keeps
	// before stemming. Defaults to 1000.
	RevsLimit int
	// DeterministicRevs derives revision ids from edit content instead of
	// random values.
	DeterministicRevs bool
	// AutoCompaction prunes non-leaf revision bodies after every update.
	AutoCompaction bool
	// Notifier is the change-notification bus shared between databases.
	// Nil gives the store a private bus.
	Notifier *Notifier
	// Logger receives debug logging. Nil discards.
	Logger *slog.Logger
}

const defaultRevsLimit = 1000

// Store is an open database handle. All methods are safe for concurrent
// use; every operation is serialized through the transaction queue.
type Store struct {
	name     string
	path     string
	db       *sql.DB
	queue    *queue
	notifier *Notifier
	log      *slog.Logger

	revsLimit      int
	deterministic  bool
	autoCompaction bool

	instanceID string
	encoding   string

	registry *Registry
}

// Registry owns the open database handles, keyed by database name.
// Opening the same name twice returns the same handle; Close releases
// it. Nothing is left to leak implicitly.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Open opens (or returns the already-open handle for) the named
// database, bootstrapping the schema on first open.
func (r *Registry) Open(opts Options) (*Store, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("open: database name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[opts.Name]; ok {
		return s, nil
	}

	s, err := open(opts)
	if err != nil {
		return nil, err
	}
	s.registry = r
	r.stores[opts.Name] = s
	return s, nil
}

// Close closes the named database and removes it from the registry.
// Closing an unknown name is a no-op.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	s, ok := r.stores[name]
	delete(r.stores, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return s.db.Close()
}

func open(opts Options) (*Store, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewNotifier()
	}
	revsLimit := opts.RevsLimit
	if revsLimit <= 0 {
		revsLimit = defaultRevsLimit
	}

	path := filepath.Join(dir, opts.Name+".sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr(err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr(err)
	}

	// One writer, one connection: the queue provides all serialization,
	// the pool must never hand out a second connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, storageErr(fmt.Errorf("apply %q: %w", pragma, err))
		}
	}

	s := &Store{
		name:           opts.Name,
		path:           path,
		db:             db,
		queue:          newQueue(db, log),
		notifier:       notifier,
		log:            log,
		revsLimit:      revsLimit,
		deterministic:  opts.DeterministicRevs,
		autoCompaction: opts.AutoCompaction,
	}

	err = s.queue.Write(func(tx *sql.Tx) error {
		if err := s.probeEncoding(tx); err != nil {
			return err
		}
		id, err := setupSchema(tx)
		if err != nil {
			return err
		}
		s.instanceID = id
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("database opened", "name", opts.Name, "path", path, "instance_id", s.instanceID)
	return s, nil
}

// probeEncoding records whether the database stores text as UTF-8 or
// UTF-16: HEX of a one-char string is two hex digits per byte.
func (s *Store) probeEncoding(tx *sql.Tx) error {
	var hex string
	if err := tx.QueryRow("SELECT HEX('a') AS hex").Scan(&hex); err != nil {
		return fmt.Errorf("probe encoding: %w", err)
	}
	if len(hex) == 2 {
		s.encoding = "UTF-8"
	} else {
		s.encoding = "UTF-16"
	}
	return nil
}

// Name returns the logical database name.
func (s *Store) Name() string { return s.name }

// InstanceID returns the database's replication identity, generated at
// first open and stable across reopens.
func (s *Store) InstanceID() string { return s.instanceID }

// Notifier returns the change-notification bus this store publishes to.
func (s *Store) Notifier() *Notifier { return s.notifier }

// Info summarizes the database.
type Info struct {
	Name      string
	DocCount  int64
	UpdateSeq int64
	Encoding  string
}

// Info reports the live (non-deleted) document count and the current
// update sequence.
func (s *Store) Info() (Info, error) {
	info := Info{Name: s.name, Encoding: s.encoding}
	err := s.queue.Read(func(tx *sql.Tx) error {
		seq, err := maxSeq(tx)
		if err != nil {
			return err
		}
		count, err := countDocs(tx)
		if err != nil {
			return err
		}
		info.UpdateSeq = seq
		info.DocCount = count
		return nil
	})
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// Close closes the database and releases its registry slot.
func (s *Store) Close() error {
	if s.registry != nil {
		return s.registry.Close(s.name)
	}
	return s.db.Close()
}

// Destroy drops every table and removes all change listeners for this
// database. The handle is closed and unregistered afterwards.
func (s *Store) Destroy() error {
	s.notifier.RemoveAllListeners(s.name)
	err := s.queue.Write(func(tx *sql.Tx) error {
		for _, table := range []string{
			docStore, bySeqStore, attachStore, metaStore, localStore, attachSeqStore,
		} {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.Close()
}

// parseDoc parses one raw edit with this store's revision settings.
func (s *Store) parseDoc(body doc.Body, newEdit bool) (*revtree.DocInfo, error) {
	return revtree.ParseDoc(body, newEdit, revtree.ParseOptions{Deterministic: s.deterministic})
}
