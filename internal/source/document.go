package source

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/danielpatrickdp/bimcheck/internal/element"
)

// #region document
// Document is the on-disk and on-wire shape of an element set.
type Document struct {
	Label    string            `json:"label,omitempty"`
	Elements []element.Element `json:"elements"`
}

type rawDocument struct {
	Label    string       `json:"label"`
	Elements []rawElement `json:"elements"`
}

// rawElement accepts property values of any JSON scalar type.
type rawElement struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Properties map[string]any `json:"properties"`
}

// DecodeDocument parses either {"label": ..., "elements": [...]} or a bare
// array of elements. Categories are normalized; a missing or null properties
// object is kept nil so the element is treated as malformed.
func DecodeDocument(data []byte) (Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Document{}, fmt.Errorf("%w: empty input", ErrBadDocument)
	}

	var raw rawDocument
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raw.Elements); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
	case '{':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
		}
	default:
		return Document{}, fmt.Errorf("%w: expected object or array", ErrBadDocument)
	}

	doc := Document{Label: raw.Label, Elements: make([]element.Element, len(raw.Elements))}
	for i, re := range raw.Elements {
		doc.Elements[i] = element.Element{
			ID:         re.ID,
			Name:       re.Name,
			Category:   element.ParseCategory(re.Category),
			Properties: stringProps(re.Properties),
		}
	}
	return doc, nil
}

func stringProps(in map[string]any) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if s, ok := scalarString(v); ok {
			out[k] = s
		}
	}
	return out
}

// scalarString renders JSON scalars as strings. Nulls, objects and arrays are dropped.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// #endregion document
