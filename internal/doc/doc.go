// Package doc defines the document model shared by the storage adapter:
// schemaless JSON bodies, "generation-hash" revision identifiers, and the
// canonical serialization used for content-addressed digests.
//
// A Body is the parsed JSON object supplied by callers. The underscore
// fields (_id, _rev, _deleted, _attachments, _revisions) carry adapter
// metadata and are stripped or rewritten at the storage boundary; the
// stored row never repeats _id/_rev because both are recoverable from the
// row's columns.
package doc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Body is a schemaless JSON document object.
type Body map[string]any

// Reserved field names carried inside a Body.
const (
	FieldID          = "_id"
	FieldRev         = "_rev"
	FieldDeleted     = "_deleted"
	FieldAttachments = "_attachments"
	FieldRevisions   = "_revisions"
)

// LocalPrefix marks non-replicated documents. Bodies whose _id starts with
// this prefix bypass revision-tree resolution entirely.
const LocalPrefix = "_local/"

// IsLocalID reports whether id names a local (unreplicated) document.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// ID returns the document's _id, or "" if absent or not a string.
func (b Body) ID() string {
	id, _ := b[FieldID].(string)
	return id
}

// Rev returns the document's _rev, or "" if absent or not a string.
func (b Body) Rev() string {
	rev, _ := b[FieldRev].(string)
	return rev
}

// Deleted reports whether the body carries a true _deleted flag.
func (b Body) Deleted() bool {
	del, _ := b[FieldDeleted].(bool)
	return del
}

// Clone returns a shallow copy of the body. Top-level keys may be added or
// removed on the copy without affecting the original; nested values are
// shared.
func (b Body) Clone() Body {
	out := make(Body, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ParseRev splits a "generation-hash" revision identifier.
func ParseRev(rev string) (gen int, hash string, err error) {
	dash := strings.IndexByte(rev, '-')
	if dash <= 0 || dash == len(rev)-1 {
		return 0, "", fmt.Errorf("malformed revision id %q", rev)
	}
	gen, err = strconv.Atoi(rev[:dash])
	if err != nil || gen < 1 {
		return 0, "", fmt.Errorf("malformed revision generation in %q", rev)
	}
	return gen, rev[dash+1:], nil
}

// FormatRev joins a generation and hash into a revision identifier.
func FormatRev(gen int, hash string) string {
	return strconv.Itoa(gen) + "-" + hash
}

// MarshalBody serializes a body for row storage. The _id and _rev fields
// are dropped: they are redundant with the row's columns and bloat every
// stored revision otherwise.
func MarshalBody(b Body) (string, error) {
	stripped := b.Clone()
	delete(stripped, FieldID)
	delete(stripped, FieldRev)
	data, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	return string(data), nil
}

// UnmarshalBody parses a stored row body and reattaches the document id
// and revision that were stripped at write time.
func UnmarshalBody(data, id, rev string) (Body, error) {
	var b Body
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	if b == nil {
		b = Body{}
	}
	b[FieldID] = id
	b[FieldRev] = rev
	return b, nil
}
