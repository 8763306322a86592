// Package zim reads and writes ZIM archives (openzim.org) and exposes them as
// content shards addressed by ekn+zim:///<namespace>/<path> identifiers.
package zim

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// MagicNumber opens every ZIM file.
const MagicNumber = 72173914

// Magic is MagicNumber in file byte order.
var Magic = binary.LittleEndian.AppendUint32(nil, MagicNumber)

// FormatName is reported by Shard.Format.
const FormatName = "zim"

const (
	headerSize = 80
	noPage     = 0xffffffff

	mimeRedirect   = 0xffff
	mimeLinkTarget = 0xfffe
	mimeDeleted    = 0xfffd

	// maxRedirects bounds redirect chains.
	maxRedirects = 16
)

// Compression is the low nibble of a cluster's info byte.
type Compression uint8

// Cluster compressions. 0 and 1 both mean uncompressed.
const (
	CompressionNone Compression = 1
	CompressionXZ   Compression = 4
	CompressionZstd Compression = 5
)

const (
	compressionMask = 0x0f
	extendedFlag    = 0x10
)

var le = binary.LittleEndian

type header struct {
	major         uint16
	minor         uint16
	uuid          uuid.UUID
	entryCount    uint32
	clusterCount  uint32
	urlPtrPos     uint64
	titlePtrPos   uint64
	clusterPtrPos uint64
	mimeListPos   uint64
	mainPage      uint32
	layoutPage    uint32
	checksumPos   uint64
}

func (h header) marshal() []byte {
	b := make([]byte, headerSize)
	le.PutUint32(b[0:], MagicNumber)
	le.PutUint16(b[4:], h.major)
	le.PutUint16(b[6:], h.minor)
	copy(b[8:24], h.uuid[:])
	le.PutUint32(b[24:], h.entryCount)
	le.PutUint32(b[28:], h.clusterCount)
	le.PutUint64(b[32:], h.urlPtrPos)
	le.PutUint64(b[40:], h.titlePtrPos)
	le.PutUint64(b[48:], h.clusterPtrPos)
	le.PutUint64(b[56:], h.mimeListPos)
	le.PutUint32(b[64:], h.mainPage)
	le.PutUint32(b[68:], h.layoutPage)
	le.PutUint64(b[72:], h.checksumPos)
	return b
}

func unmarshalHeader(b []byte) header {
	var h header
	h.major = le.Uint16(b[4:])
	h.minor = le.Uint16(b[6:])
	copy(h.uuid[:], b[8:24])
	h.entryCount = le.Uint32(b[24:])
	h.clusterCount = le.Uint32(b[28:])
	h.urlPtrPos = le.Uint64(b[32:])
	h.titlePtrPos = le.Uint64(b[40:])
	h.clusterPtrPos = le.Uint64(b[48:])
	h.mimeListPos = le.Uint64(b[56:])
	h.mainPage = le.Uint32(b[64:])
	h.layoutPage = le.Uint32(b[68:])
	h.checksumPos = le.Uint64(b[72:])
	return h
}

// dirent is a parsed directory entry.
type dirent struct {
	mime      uint16
	namespace byte
	revision  uint32
	redirect  uint32
	cluster   uint32
	blob      uint32
	url       string
	title     string
}

func (d dirent) isRedirect() bool { return d.mime == mimeRedirect }

func (d dirent) hasContent() bool {
	return d.mime != mimeRedirect && d.mime != mimeLinkTarget && d.mime != mimeDeleted
}

func (d dirent) key() string { return string(d.namespace) + "/" + d.url }

// displayTitle falls back to the url, as ZIM readers do for untitled entries.
func (d dirent) displayTitle() string {
	if d.title == "" {
		return d.url
	}
	return d.title
}
