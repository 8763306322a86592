package pack

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
)

// Entry is one record to be written.
type Entry struct {
	// ID is the 40 hex digit record id.
	ID          string
	Metadata    []byte
	Data        []byte
	ContentType string
	// Codec compresses both metadata and data.
	Codec     Codec
	Resources []Resource
}

// Resource is a named blob attached to an entry.
type Resource struct {
	Name        string
	ContentType string
	Data        []byte
	Codec       Codec
}

// Writer assembles a pack container in memory.
type Writer struct {
	entries   map[string]Entry
	links     map[string]string
	stopwords []string
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{entries: make(map[string]Entry)}
}

// Add queues an entry. IDs must be unique 40 hex digit strings.
func (w *Writer) Add(e Entry) error {
	raw, err := hex.DecodeString(e.ID)
	if err != nil || len(raw) != idSize {
		return fmt.Errorf("invalid record id %q", e.ID)
	}
	key := hex.EncodeToString(raw)
	if _, ok := w.entries[key]; ok {
		return fmt.Errorf("duplicate record id %s", key)
	}
	if !e.Codec.IsValid() {
		return fmt.Errorf("record %s: unknown codec %d", key, e.Codec)
	}
	if len(e.ContentType) > maxCTLength {
		return fmt.Errorf("record %s: content type too long", key)
	}
	for _, r := range e.Resources {
		if r.Name == "" || len(r.Name) > maxCTLength {
			return fmt.Errorf("record %s: invalid resource name %q", key, r.Name)
		}
		if !r.Codec.IsValid() {
			return fmt.Errorf("record %s: resource %s: unknown codec %d", key, r.Name, r.Codec)
		}
	}
	e.ID = key
	w.entries[key] = e
	return nil
}

// SetLinkTable stores a link to record id mapping in the header link table.
func (w *Writer) SetLinkTable(links map[string]string) {
	w.links = maps.Clone(links)
}

// SetStopwords stores the stopword list.
func (w *Writer) SetStopwords(words []string) {
	w.stopwords = append([]string(nil), words...)
}

// WriteTo serializes the container.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize))

	var h header
	if len(w.links) > 0 {
		data, err := json.Marshal(w.links)
		if err != nil {
			return 0, fmt.Errorf("link table: %w", err)
		}
		off, err := writeBlob(&buf, CodecNone, "application/json", data)
		if err != nil {
			return 0, err
		}
		h.links = off
	}
	if len(w.stopwords) > 0 {
		off, err := writeBlob(&buf, CodecNone, "text/plain", []byte(strings.Join(w.stopwords, "\n")))
		if err != nil {
			return 0, err
		}
		h.stopwords = off
	}

	keys := make([]string, 0, len(w.entries))
	for k := range w.entries {
		keys = append(keys, k)
	}
	// Lowercase hex sorts like the raw bytes it encodes.
	sort.Strings(keys)

	table := make([]entry, 0, len(keys))
	for _, k := range keys {
		e, err := writeEntry(&buf, w.entries[k])
		if err != nil {
			return 0, err
		}
		table = append(table, e)
	}

	h.count = uint32(len(table)) //nolint:gosec // bounded by memory
	h.table = uint64(buf.Len())
	for _, e := range table {
		buf.Write(e.marshal())
	}

	data := buf.Bytes()
	copy(data, h.marshal())
	n, err := out.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("write pack: %w", err)
	}
	return int64(n), nil
}

// Bytes serializes the container into a byte slice.
func (w *Writer) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if _, err := w.WriteTo(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func writeEntry(buf *bytes.Buffer, src Entry) (entry, error) {
	var e entry
	raw, _ := hex.DecodeString(src.ID)
	copy(e.id[:], raw)

	if src.Metadata != nil {
		off, err := writeBlob(buf, src.Codec, "application/json", src.Metadata)
		if err != nil {
			return entry{}, fmt.Errorf("record %s metadata: %w", src.ID, err)
		}
		e.metadata = off
	}
	if src.Data != nil {
		off, err := writeBlob(buf, src.Codec, src.ContentType, src.Data)
		if err != nil {
			return entry{}, fmt.Errorf("record %s data: %w", src.ID, err)
		}
		e.data = off
	}
	if len(src.Resources) == 0 {
		return e, nil
	}

	offsets := make([]uint64, len(src.Resources))
	for i, r := range src.Resources {
		off, err := writeBlob(buf, r.Codec, r.ContentType, r.Data)
		if err != nil {
			return entry{}, fmt.Errorf("record %s resource %s: %w", src.ID, r.Name, err)
		}
		offsets[i] = off
	}
	e.resources = uint64(buf.Len())
	e.resourceCount = uint32(len(src.Resources)) //nolint:gosec // bounded by memory
	for i, r := range src.Resources {
		var tmp [8]byte
		le.PutUint16(tmp[:2], uint16(len(r.Name))) //nolint:gosec // validated in Add
		buf.Write(tmp[:2])
		buf.WriteString(r.Name)
		le.PutUint64(tmp[:], offsets[i])
		buf.Write(tmp[:])
	}
	return e, nil
}

func writeBlob(buf *bytes.Buffer, codec Codec, contentType string, data []byte) (uint64, error) {
	var stored bytes.Buffer
	if err := codec.encode(&stored, data); err != nil {
		return 0, err
	}
	off := uint64(buf.Len())
	var tmp [8]byte
	buf.WriteByte(byte(codec))
	le.PutUint16(tmp[:2], uint16(len(contentType))) //nolint:gosec // validated in Add
	buf.Write(tmp[:2])
	buf.WriteString(contentType)
	le.PutUint64(tmp[:], uint64(len(data)))
	buf.Write(tmp[:])
	le.PutUint64(tmp[:], uint64(stored.Len()))
	buf.Write(tmp[:])
	buf.Write(stored.Bytes())
	return off, nil
}
