package zim

import (
	"bytes"
	"crypto/md5" //nolint:gosec // ZIM checksums are MD5 by format definition
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// blobsPerCluster bounds how many blobs share one cluster.
const blobsPerCluster = 32

// Entry is one directory entry to be written. Entries with RedirectTo set
// ("<namespace>/<path>") are redirects and carry no data.
type Entry struct {
	Namespace  byte
	URL        string
	Title      string
	MimeType   string
	Data       []byte
	RedirectTo string
}

func (e Entry) key() string { return string(e.Namespace) + "/" + e.URL }

// Writer assembles a ZIM archive in memory.
type Writer struct {
	compression Compression
	uuid        uuid.UUID
	entries     map[string]Entry
	mainPage    string
}

// NewWriter creates a writer storing clusters with the given compression.
func NewWriter(c Compression) *Writer {
	return &Writer{compression: c, uuid: uuid.New(), entries: make(map[string]Entry)}
}

// SetUUID overrides the random archive uuid.
func (w *Writer) SetUUID(id uuid.UUID) { w.uuid = id }

// SetMainPage marks the entry with the given key as main page.
func (w *Writer) SetMainPage(key string) { w.mainPage = key }

// Add queues an entry. Keys must be unique.
func (w *Writer) Add(e Entry) error {
	if e.Namespace == 0 || e.URL == "" {
		return fmt.Errorf("entry needs a namespace and url")
	}
	if _, ok := w.entries[e.key()]; ok {
		return fmt.Errorf("duplicate entry %s", e.key())
	}
	w.entries[e.key()] = e
	return nil
}

// WriteTo serializes the archive.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	data, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := out.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("write zim: %w", err)
	}
	return int64(n), nil
}

// Bytes serializes the archive into a byte slice.
func (w *Writer) Bytes() ([]byte, error) {
	entries := make([]Entry, 0, len(w.entries))
	for _, e := range w.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return compareKey(entries[i].Namespace, entries[i].URL, entries[j].Namespace, entries[j].URL) < 0
	})
	index := make(map[string]uint32, len(entries))
	for i, e := range entries {
		index[e.key()] = uint32(i) //nolint:gosec // bounded by memory
	}

	mimeIdx := make(map[string]uint16)
	var mimes []string
	for _, e := range entries {
		if e.RedirectTo != "" {
			continue
		}
		if _, ok := mimeIdx[e.MimeType]; !ok {
			mimes = append(mimes, e.MimeType)
		}
		mimeIdx[e.MimeType] = 0
	}
	sort.Strings(mimes)
	for i, m := range mimes {
		mimeIdx[m] = uint16(i) //nolint:gosec // bounded by mime count
	}

	// Assign blobs to clusters in entry order.
	type loc struct{ cluster, blob uint32 }
	locs := make(map[string]loc)
	var clusters [][][]byte
	for _, e := range entries {
		if e.RedirectTo != "" {
			continue
		}
		if len(clusters) == 0 || len(clusters[len(clusters)-1]) == blobsPerCluster {
			clusters = append(clusters, nil)
		}
		c := len(clusters) - 1
		locs[e.key()] = loc{cluster: uint32(c), blob: uint32(len(clusters[c]))} //nolint:gosec // bounded
		clusters[c] = append(clusters[c], e.Data)
	}

	var mimeList bytes.Buffer
	for _, m := range mimes {
		mimeList.WriteString(m)
		mimeList.WriteByte(0)
	}
	mimeList.WriteByte(0)

	var dirents bytes.Buffer
	direntOffsets := make([]int, len(entries))
	for i, e := range entries {
		direntOffsets[i] = dirents.Len()
		var fixed [16]byte
		fixed[3] = e.Namespace
		if e.RedirectTo != "" {
			target, ok := index[e.RedirectTo]
			if !ok {
				return nil, fmt.Errorf("redirect %s: unknown target %s", e.key(), e.RedirectTo)
			}
			le.PutUint16(fixed[0:], mimeRedirect)
			le.PutUint32(fixed[8:], target)
			dirents.Write(fixed[:12])
		} else {
			l := locs[e.key()]
			le.PutUint16(fixed[0:], mimeIdx[e.MimeType])
			le.PutUint32(fixed[8:], l.cluster)
			le.PutUint32(fixed[12:], l.blob)
			dirents.Write(fixed[:])
		}
		dirents.WriteString(e.URL)
		dirents.WriteByte(0)
		dirents.WriteString(e.Title)
		dirents.WriteByte(0)
	}

	clusterData := make([][]byte, len(clusters))
	for i, blobs := range clusters {
		b, err := w.cluster(blobs)
		if err != nil {
			return nil, fmt.Errorf("cluster %d: %w", i, err)
		}
		clusterData[i] = b
	}

	n := uint64(len(entries))
	h := header{
		major:        6,
		minor:        1,
		uuid:         w.uuid,
		entryCount:   uint32(n), //nolint:gosec // bounded by memory
		clusterCount: uint32(len(clusters)),
		mimeListPos:  headerSize,
		mainPage:     noPage,
		layoutPage:   noPage,
	}
	if idx, ok := index[w.mainPage]; ok {
		h.mainPage = idx
	}
	h.urlPtrPos = h.mimeListPos + uint64(mimeList.Len())
	h.titlePtrPos = h.urlPtrPos + 8*n
	direntsPos := h.titlePtrPos + 4*n
	h.clusterPtrPos = direntsPos + uint64(dirents.Len())
	clustersPos := h.clusterPtrPos + 8*uint64(len(clusters))

	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize))
	buf.Write(mimeList.Bytes())
	var tmp [8]byte
	for _, off := range direntOffsets {
		le.PutUint64(tmp[:], direntsPos+uint64(off)) //nolint:gosec // non-negative
		buf.Write(tmp[:])
	}
	for _, idx := range titleOrder(entries) {
		le.PutUint32(tmp[:4], idx)
		buf.Write(tmp[:4])
	}
	buf.Write(dirents.Bytes())
	pos := clustersPos
	for _, c := range clusterData {
		le.PutUint64(tmp[:], pos)
		buf.Write(tmp[:])
		pos += uint64(len(c))
	}
	for _, c := range clusterData {
		buf.Write(c)
	}
	h.checksumPos = uint64(buf.Len())

	data := buf.Bytes()
	copy(data, h.marshal())
	sum := md5.Sum(data) //nolint:gosec // format-defined checksum
	return append(data, sum[:]...), nil
}

// titleOrder returns entry indexes sorted by namespace then title.
func titleOrder(entries []Entry) []uint32 {
	order := make([]uint32, len(entries))
	for i := range order {
		order[i] = uint32(i) //nolint:gosec // bounded by memory
	}
	title := func(e Entry) string {
		if e.Title == "" {
			return e.URL
		}
		return e.Title
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := entries[order[i]], entries[order[j]]
		return compareKey(a.Namespace, title(a), b.Namespace, title(b)) < 0
	})
	return order
}

func (w *Writer) cluster(blobs [][]byte) ([]byte, error) {
	var raw bytes.Buffer
	first := 4 * (len(blobs) + 1)
	var tmp [4]byte
	off := first
	le.PutUint32(tmp[:], uint32(off)) //nolint:gosec // bounded by memory
	raw.Write(tmp[:])
	for _, b := range blobs {
		off += len(b)
		le.PutUint32(tmp[:], uint32(off)) //nolint:gosec // bounded by memory
		raw.Write(tmp[:])
	}
	for _, b := range blobs {
		raw.Write(b)
	}

	var out bytes.Buffer
	switch w.compression {
	case 0, CompressionNone:
		out.WriteByte(byte(CompressionNone))
		out.Write(raw.Bytes())
	case CompressionZstd:
		out.WriteByte(byte(CompressionZstd))
		enc, err := zstd.NewWriter(&out)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if _, err := enc.Write(raw.Bytes()); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
	case CompressionXZ:
		out.WriteByte(byte(CompressionXZ))
		enc, err := xz.NewWriter(&out)
		if err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		if _, err := enc.Write(raw.Bytes()); err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("xz: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported compression %d", w.compression)
	}
	return out.Bytes(), nil
}
