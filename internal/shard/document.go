package shard

import (
	"slices"

	"github.com/kailas-cloud/dmodel/internal/domain/ekn"
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/domain/search/filter"
)

// Compile-time check: Document can be filtered.
var _ filter.Subject = Document{}

// Document is the searchable projection of one record.
type Document struct {
	Key            string
	ID             string
	Kind           model.Kind
	Title          string
	Synopsis       string
	Body           string
	Tags           []string
	ContentType    string
	SequenceNumber int
	HasSequence    bool
	LastModified   string
	Ordinal        int
}

// NewDocument projects a model into a document. body is extra searchable text.
func NewDocument(rec Record, m model.Model, body string) Document {
	c := m.Base()
	seq, hasSeq := c.SequenceNumber()
	id := c.ID()
	if parsed, err := ekn.Parse(id); err == nil {
		id = parsed.Record().String()
	}
	return Document{
		Key:            rec.Key(),
		ID:             id,
		Kind:           m.Kind(),
		Title:          c.Title(),
		Synopsis:       c.Synopsis(),
		Body:           body,
		Tags:           c.Tags(),
		ContentType:    c.ContentType(),
		SequenceNumber: seq,
		HasSequence:    hasSeq,
		LastModified:   c.LastModifiedDate(),
		Ordinal:        rec.Ordinal(),
	}
}

// Has implements filter.Subject.
func (d Document) Has(f filter.Field, value string) bool {
	switch f {
	case filter.Tag:
		return slices.Contains(d.Tags, value)
	case filter.ID:
		return d.ID == value
	case filter.ContentType:
		return d.ContentType == value
	default:
		return false
	}
}
