package revtree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tansell/docsql/internal/doc"
)

// ErrConflict signals a revision-tree conflict: the edit's parent revision
// is not a current leaf (or the document already exists and no parent was
// supplied).
var ErrConflict = errors.New("document update conflict")

// DocInfo is a parsed, resolver-ready document edit.
type DocInfo struct {
	ID       string
	Metadata *Metadata
	Data     doc.Body
	// StemmedRevs lists ancestor revisions pruned while merging this edit;
	// the revision store compacts them away after the write.
	StemmedRevs []string
}

// ParseOptions control revision-id generation for new edits.
type ParseOptions struct {
	// Deterministic derives the new revision hash from the edit content
	// instead of a random value, so identical edits get identical ids.
	Deterministic bool
}

// ParseDoc validates a raw document edit and produces its revision
// metadata. With newEdit set, a fresh revision id is generated as a child
// of the body's _rev; otherwise the body must carry pre-resolved revision
// information (_revisions from a replicator, or a bare _rev).
//
// Parse failures reject the whole batch before any database access, so
// every error returned here is a batch-level error.
func ParseDoc(body doc.Body, newEdit bool, opts ParseOptions) (*DocInfo, error) {
	id := body.ID()
	if raw, ok := body[doc.FieldID]; ok {
		if _, isString := raw.(string); !isString {
			return nil, fmt.Errorf("document id must be a string, got %T", raw)
		}
	}
	if id == "" {
		if newEdit {
			id = doc.RandomRevHash()
		} else {
			return nil, errors.New("document is missing an _id")
		}
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	data := body.Clone()
	delete(data, doc.FieldRevisions)
	deleted := body.Deleted()

	if newEdit {
		return parseNewEdit(id, body, data, deleted, opts)
	}
	return parseForeignEdit(id, body, data, deleted)
}

func parseNewEdit(id string, body, data doc.Body, deleted bool, opts ParseOptions) (*DocInfo, error) {
	parent := body.Rev()
	gen := 1
	if parent != "" {
		parentGen, _, err := doc.ParseRev(parent)
		if err != nil {
			return nil, err
		}
		gen = parentGen + 1
	}

	var hash string
	if opts.Deterministic {
		var err error
		hash, err = doc.RevHash(id, parent, deleted, body)
		if err != nil {
			return nil, fmt.Errorf("compute revision hash: %w", err)
		}
	} else {
		hash = doc.RandomRevHash()
	}
	rev := doc.FormatRev(gen, hash)

	tree := Tree{rev: &RevInfo{Parent: parent, Deleted: deleted}}
	if parent != "" {
		tree[parent] = &RevInfo{Missing: true}
	}

	data[doc.FieldID] = id
	data[doc.FieldRev] = rev
	return &DocInfo{
		ID:       id,
		Metadata: &Metadata{ID: id, Tree: tree, Rev: rev},
		Data:     data,
	}, nil
}

// parseForeignEdit builds the tree path for a pre-resolved edit, as
// delivered by replication: _revisions carries the leaf-first ancestor
// hash list; a bare _rev yields a single-node path.
func parseForeignEdit(id string, body, data doc.Body, deleted bool) (*DocInfo, error) {
	start, ids, err := revisionsOf(body)
	if err != nil {
		return nil, err
	}

	var rev string
	tree := Tree{}
	if len(ids) > 0 {
		rev = doc.FormatRev(start, ids[0])
		for i, hash := range ids {
			gen := start - i
			if gen < 1 {
				return nil, fmt.Errorf("_revisions start %d is shorter than its ids list", start)
			}
			node := &RevInfo{Missing: true}
			if i == 0 {
				node.Missing = false
				node.Deleted = deleted
			}
			if i+1 < len(ids) {
				node.Parent = doc.FormatRev(gen-1, ids[i+1])
			}
			tree[doc.FormatRev(gen, hash)] = node
		}
	} else {
		rev = body.Rev()
		if rev == "" {
			return nil, errors.New("foreign edit is missing _rev and _revisions")
		}
		if _, _, err := doc.ParseRev(rev); err != nil {
			return nil, err
		}
		tree[rev] = &RevInfo{Deleted: deleted}
	}

	data[doc.FieldID] = id
	data[doc.FieldRev] = rev
	return &DocInfo{
		ID:       id,
		Metadata: &Metadata{ID: id, Tree: tree, Rev: rev},
		Data:     data,
	}, nil
}

func revisionsOf(body doc.Body) (start int, ids []string, err error) {
	raw, ok := body[doc.FieldRevisions]
	if !ok || raw == nil {
		return 0, nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return 0, nil, fmt.Errorf("malformed _revisions field: %T", raw)
	}
	switch s := m["start"].(type) {
	case float64:
		start = int(s)
	case int:
		start = s
	default:
		return 0, nil, errors.New("_revisions.start must be a number")
	}
	rawIDs, ok := m["ids"].([]any)
	if !ok {
		if strIDs, ok := m["ids"].([]string); ok {
			return start, strIDs, nil
		}
		return 0, nil, errors.New("_revisions.ids must be an array of strings")
	}
	ids = make([]string, len(rawIDs))
	for i, v := range rawIDs {
		hash, ok := v.(string)
		if !ok {
			return 0, nil, errors.New("_revisions.ids must be an array of strings")
		}
		ids[i] = hash
	}
	return start, ids, nil
}

func validateID(id string) error {
	if !strings.HasPrefix(id, "_") {
		return nil
	}
	if doc.IsLocalID(id) || strings.HasPrefix(id, "_design/") {
		return nil
	}
	return fmt.Errorf("document id %q starts with a reserved prefix", id)
}
