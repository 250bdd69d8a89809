package models

import (
	"fmt"
	"strings"
)

// Metadata is the content-addressed metadata document. It is kept as an
// opaque JSON object; accessors read the handful of fields the normalizer needs.
type Metadata map[string]any

// Attribute is one entry of the metadata "attributes" array.
type Attribute struct {
	TraitType string
	Value     string
}

// String returns a trimmed string field, or "" when absent or not scalar.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Attributes returns well-formed attribute entries; malformed ones are skipped.
func (m Metadata) Attributes() []Attribute {
	raw, ok := m["attributes"].([]any)
	if !ok {
		return nil
	}
	attrs := make([]Attribute, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		trait, _ := entry["trait_type"].(string)
		if trait == "" {
			continue
		}
		attrs = append(attrs, Attribute{
			TraitType: strings.TrimSpace(trait),
			Value:     Metadata(entry).String("value"),
		})
	}
	return attrs
}

// Trait returns the first non-empty value whose trait type matches one of
// names (case-insensitive).
func (m Metadata) Trait(names ...string) string {
	for _, attr := range m.Attributes() {
		for _, name := range names {
			if strings.EqualFold(attr.TraitType, name) && attr.Value != "" {
				return attr.Value
			}
		}
	}
	return ""
}

// Empty reports whether the document carries no fields.
func (m Metadata) Empty() bool {
	return len(m) == 0
}

// ContentScheme prefixes content-addressed URIs.
const ContentScheme = "ipfs://"

// ContentAddress strips the content scheme and any leading "ipfs/" path
// segment from uri. Plain CIDs pass through trimmed.
func ContentAddress(uri string) string {
	cid := strings.TrimSpace(uri)
	if len(cid) >= len(ContentScheme) && strings.EqualFold(cid[:len(ContentScheme)], ContentScheme) {
		cid = cid[len(ContentScheme):]
	}
	cid = strings.TrimPrefix(cid, "ipfs/")
	return cid
}

// ImageCID returns the content address of the "image" field. Gateway URLs
// are reduced to the path after "/ipfs/"; other web URLs have no CID.
func (m Metadata) ImageCID() string {
	image := m.String("image")
	if image == "" {
		return ""
	}
	lower := strings.ToLower(image)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if i := strings.Index(lower, "/ipfs/"); i >= 0 {
			return image[i+len("/ipfs/"):]
		}
		return ""
	}
	return ContentAddress(image)
}
