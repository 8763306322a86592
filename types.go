package dmodel

import (
	"github.com/kailas-cloud/dmodel/internal/domain/model"
	"github.com/kailas-cloud/dmodel/internal/shard"
)

// Type is the variant of a content object.
type Type string

// Object types. A type filter also matches the types derived from it:
// TypeMedia matches images, videos and audio; TypeContent matches everything.
const (
	TypeContent         Type = Type(model.KindContent)
	TypeArticle         Type = Type(model.KindArticle)
	TypeSet             Type = Type(model.KindSet)
	TypeMedia           Type = Type(model.KindMedia)
	TypeImage           Type = Type(model.KindImage)
	TypeVideo           Type = Type(model.KindVideo)
	TypeAudio           Type = Type(model.KindAudio)
	TypeDictionaryEntry Type = Type(model.KindDictionaryEntry)
)

// Match selects the fields search terms are matched against.
type Match string

// Match fields.
const (
	MatchTitle         Match = "title"
	MatchTitleSynopsis Match = "title_synopsis"
)

// Mode selects how the last search term is matched.
type Mode string

// Query modes.
const (
	// ModeIncremental treats the last term as a prefix (search as you type).
	ModeIncremental Mode = "incremental"
	ModeDelimited   Mode = "delimited"
)

// Sort selects the result order.
type Sort string

// Sort keys.
const (
	SortRelevance      Sort = "relevance"
	SortSequenceNumber Sort = "sequence_number"
	SortDate           Sort = "date"
	SortAlphabetical   Sort = "alphabetical"
)

// Order is the direction of a non-relevance sort.
type Order string

// Orders.
const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Object is a content object loaded from a shard.
type Object struct {
	ID               string
	Type             Type
	Title            string
	Synopsis         string
	ContentType      string
	LastModifiedDate string
	Tags             []string
	// SequenceNumber is nil when the object has none.
	SequenceNumber *int
	// Tree is the full JSON-LD metadata of the object.
	Tree map[string]any
}

// Page is one page of query results.
type Page struct {
	Objects []Object
	// UpperBound is the number of records matching the query across all pages.
	UpperBound int
	// NextOffset is the offset of the following page.
	NextOffset int
	HasMore    bool
}

// Blob is an open record payload. Callers must close Body.
type Blob = shard.Blob

func objectFromModel(m model.Model) Object {
	c := m.Base()
	obj := Object{
		ID:               c.ID(),
		Type:             Type(m.Kind()),
		Title:            c.Title(),
		Synopsis:         c.Synopsis(),
		ContentType:      c.ContentType(),
		LastModifiedDate: c.LastModifiedDate(),
		Tags:             c.Tags(),
		Tree:             model.ToTree(m),
	}
	if n, ok := c.SequenceNumber(); ok {
		obj.SequenceNumber = &n
	}
	return obj
}
