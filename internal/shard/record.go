package shard

// Record is a located entry inside a shard. Ref is an opaque locator owned by
// the shard implementation that produced the record.
type Record struct {
	key         string
	contentType string
	title       string
	size        int64
	ordinal     int
	ref         uint64
}

// NewRecord creates a record. Only shard implementations construct records.
func NewRecord(key, contentType, title string, size int64, ordinal int, ref uint64) Record {
	return Record{
		key: key, contentType: contentType, title: title,
		size: size, ordinal: ordinal, ref: ref,
	}
}

// Key returns the lookup key inside the shard.
func (r Record) Key() string { return r.key }

// ContentType returns the payload media type.
func (r Record) ContentType() string { return r.contentType }

// Title returns the title stored with the record, if the format has one.
func (r Record) Title() string { return r.title }

// Size returns the uncompressed payload size.
func (r Record) Size() int64 { return r.size }

// Ordinal returns the position of the record inside its shard.
func (r Record) Ordinal() int { return r.ordinal }

// Ref returns the implementation-specific locator.
func (r Record) Ref() uint64 { return r.ref }
