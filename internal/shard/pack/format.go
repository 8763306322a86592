// Package pack reads and writes EKNSHARD containers: content-addressed records
// holding a JSON metadata blob, an optional data blob and named resources.
//
// Layout, all integers little-endian:
//
//	header   magic[8] version u32 count u32 table u64 links u64 stopwords u64 reserved u64
//	entry    id[20] metadata u64 data u64 resources u64 resourceCount u32
//	resource nameLen u16 name blob u64
//	blob     codec u8 ctLen u16 contentType contentSize u64 storedSize u64 bytes
//
// Entries are sorted by raw id. Offsets of zero mean absent.
package pack

import (
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/binary"
	"encoding/hex"
)

// Magic opens every pack shard.
var Magic = []byte("EKNSHARD")

// FormatName is reported by Shard.Format.
const FormatName = "pack"

const (
	version     = 1
	headerSize  = 48
	entrySize   = 48
	idSize      = 20
	blobFixed   = 1 + 2 + 8 + 8
	maxCTLength = 1<<16 - 1
)

// LinkTableID is the id of a record whose data is a link table.
var LinkTableID = HashID("link-table")

var le = binary.LittleEndian

// HashID returns the hex sha1 of s, the id scheme used for well-known records.
func HashID(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // content addressing
	return hex.EncodeToString(sum[:])
}

type header struct {
	count     uint32
	table     uint64
	links     uint64
	stopwords uint64
}

func (h header) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b, Magic)
	le.PutUint32(b[8:], version)
	le.PutUint32(b[12:], h.count)
	le.PutUint64(b[16:], h.table)
	le.PutUint64(b[24:], h.links)
	le.PutUint64(b[32:], h.stopwords)
	return b
}

type entry struct {
	id            [idSize]byte
	metadata      uint64
	data          uint64
	resources     uint64
	resourceCount uint32
}

func (e entry) key() string { return hex.EncodeToString(e.id[:]) }

func (e entry) marshal() []byte {
	b := make([]byte, entrySize)
	copy(b, e.id[:])
	le.PutUint64(b[20:], e.metadata)
	le.PutUint64(b[28:], e.data)
	le.PutUint64(b[36:], e.resources)
	le.PutUint32(b[44:], e.resourceCount)
	return b
}

func unmarshalEntry(b []byte) entry {
	var e entry
	copy(e.id[:], b[:idSize])
	e.metadata = le.Uint64(b[20:])
	e.data = le.Uint64(b[28:])
	e.resources = le.Uint64(b[36:])
	e.resourceCount = le.Uint32(b[44:])
	return e
}

type blobHeader struct {
	codec       Codec
	contentType string
	size        int64
	stored      int64
	// body is the absolute offset of the stored bytes.
	body int64
}
