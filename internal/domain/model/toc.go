package model

import (
	"fmt"
	"maps"

	"github.com/kailas-cloud/dmodel/internal/domain"
)

// TOC entry field names.
const (
	TOCIndex      = "hasIndex"
	TOCLabel      = "hasLabel"
	TOCIndexLabel = "hasIndexLabel"
	TOCContent    = "hasContent"
	TOCParent     = "hasParent"
)

// TOCEntry is one table-of-contents entry. hasIndex is numeric, every other field a string.
type TOCEntry struct {
	index    int
	hasIndex bool
	fields   map[string]string
}

// NewTOCEntry creates an entry from already typed values.
func NewTOCEntry(index int, fields map[string]string) TOCEntry {
	return TOCEntry{index: index, hasIndex: true, fields: maps.Clone(fields)}
}

func newTOCEntry(obj map[string]any) (TOCEntry, error) {
	e := TOCEntry{fields: make(map[string]string, len(obj))}
	for k, v := range obj {
		if k == TOCIndex {
			n, ok := toInt(v)
			if !ok {
				return TOCEntry{}, fmt.Errorf("%w: %s must be numeric, got %v", domain.ErrMalformedData, TOCIndex, v)
			}
			e.index, e.hasIndex = n, true
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			return TOCEntry{}, fmt.Errorf("%w: toc field %q must be a scalar, got %T", domain.ErrMalformedData, k, v)
		}
		e.fields[k] = s
	}
	return e, nil
}

// Index returns hasIndex and whether it was present.
func (e TOCEntry) Index() (int, bool) { return e.index, e.hasIndex }

// Label returns hasLabel.
func (e TOCEntry) Label() string { return e.fields[TOCLabel] }

// Content returns hasContent, usually a fragment link.
func (e TOCEntry) Content() string { return e.fields[TOCContent] }

// Get returns a string field.
func (e TOCEntry) Get(name string) (string, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// Fields returns a copy of the string fields.
func (e TOCEntry) Fields() map[string]string { return maps.Clone(e.fields) }

func (e TOCEntry) tree() map[string]any {
	out := make(map[string]any, len(e.fields)+1)
	for k, v := range e.fields {
		out[k] = v
	}
	if e.hasIndex {
		out[TOCIndex] = int64(e.index)
	}
	return out
}
