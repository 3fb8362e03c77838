package doc

import (
	"encoding/base64"
	"fmt"
)

// Attachment is the decoded form of one entry in a body's _attachments
// map. Data holds raw bytes once preprocessing has run; on the wire the
// bytes travel base64-encoded in the "data" field.
type Attachment struct {
	ContentType string
	Digest      string
	Data        []byte
	Stub        bool
	Length      int
	RevPos      int
}

// Attachments decodes the body's _attachments map. Entries may be wire
// form (map[string]any from JSON) or already-typed *Attachment values.
// Returns nil when the body has no attachments.
func Attachments(b Body) (map[string]*Attachment, error) {
	raw, ok := b[FieldAttachments]
	if !ok || raw == nil {
		return nil, nil
	}
	switch atts := raw.(type) {
	case map[string]*Attachment:
		return atts, nil
	case map[string]any:
		out := make(map[string]*Attachment, len(atts))
		for name, v := range atts {
			att, err := decodeAttachment(v)
			if err != nil {
				return nil, fmt.Errorf("attachment %q: %w", name, err)
			}
			out[name] = att
		}
		return out, nil
	default:
		return nil, fmt.Errorf("malformed _attachments field: %T", raw)
	}
}

// SetAttachments replaces the body's _attachments map with typed entries.
func SetAttachments(b Body, atts map[string]*Attachment) {
	if len(atts) == 0 {
		delete(b, FieldAttachments)
		return
	}
	b[FieldAttachments] = atts
}

// MarshalJSON emits the wire form. Stubs and storage copies reference
// content by digest only; an attachment still holding bytes writes them
// base64-encoded in "data".
func (a *Attachment) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if a.ContentType != "" {
		m["content_type"] = a.ContentType
	}
	if a.Digest != "" {
		m["digest"] = a.Digest
	}
	if a.Stub {
		m["stub"] = true
	} else if len(a.Data) > 0 {
		m["data"] = base64.StdEncoding.EncodeToString(a.Data)
	}
	if a.Length > 0 {
		m["length"] = a.Length
	}
	if a.RevPos > 0 {
		m["revpos"] = a.RevPos
	}
	return MarshalCanonical(m)
}

func decodeAttachment(v any) (*Attachment, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if att, ok := v.(*Attachment); ok {
			return att, nil
		}
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	att := &Attachment{}
	if ct, ok := m["content_type"].(string); ok {
		att.ContentType = ct
	}
	if dig, ok := m["digest"].(string); ok {
		att.Digest = dig
	}
	if stub, ok := m["stub"].(bool); ok {
		att.Stub = stub
	}
	switch l := m["length"].(type) {
	case float64:
		att.Length = int(l)
	case int:
		att.Length = l
	}
	switch rp := m["revpos"].(type) {
	case float64:
		att.RevPos = int(rp)
	case int:
		att.RevPos = rp
	}
	switch data := m["data"].(type) {
	case nil:
	case string:
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
		att.Data = raw
	case []byte:
		att.Data = data
	default:
		return nil, fmt.Errorf("unsupported data field type %T", data)
	}
	return att, nil
}
