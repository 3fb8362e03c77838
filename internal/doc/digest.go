package doc

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// AttachmentDigest computes the content address for attachment bytes.
// The "md5-" prefix plus base64 sum matches the format replicated peers
// exchange, so digests written here verify against foreign stubs.
func AttachmentDigest(data []byte) string {
	sum := md5.Sum(data)
	return "md5-" + base64.StdEncoding.EncodeToString(sum[:])
}

// RevHash computes a deterministic revision hash for a document edit: the
// hex MD5 of the canonical encoding of the edit's identity (document id,
// parent revision, tombstone flag, body content). The same edit replayed
// anywhere yields the same revision id.
func RevHash(id, parentRev string, deleted bool, body Body) (string, error) {
	content := body.Clone()
	delete(content, FieldID)
	delete(content, FieldRev)
	delete(content, FieldRevisions)
	payload := map[string]any{
		"id":      id,
		"parent":  parentRev,
		"deleted": deleted,
		"doc":     map[string]any(content),
	}
	data, err := MarshalCanonical(payload)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// RandomRevHash returns a random 32-character revision hash.
func RandomRevHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
