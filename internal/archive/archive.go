// Package archive looks up members of packaged article bodies stored as zip,
// tar, tar.gz or tar.zst.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Kind is the detected container type.
type Kind string

// Supported containers.
const (
	Zip    Kind = "zip"
	Tar    Kind = "tar"
	TarGz  Kind = "tar.gz"
	TarZst Kind = "tar.zst"
)

// ErrUnsupported signals data that is not a recognized archive.
var ErrUnsupported = errors.New("archive: unsupported format")

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	gzipMagic     = []byte{0x1f, 0x8b}
	zstdMagic     = []byte{0x28, 0xb5, 0x2f, 0xfd}
	tarMagic      = []byte("ustar")
)

const tarMagicOffset = 257

// Archive is an opened container.
type Archive struct {
	kind Kind
	r    io.ReaderAt
	size int64
	zip  *zip.Reader
}

// Open sniffs r and opens the archive it holds.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	head := make([]byte, tarMagicOffset+len(tarMagic))
	n, err := r.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("archive: read header: %w", err)
	}
	head = head[:n]

	a := &Archive{r: r, size: size}
	switch {
	case bytes.HasPrefix(head, zipMagic), bytes.HasPrefix(head, zipEmptyMagic):
		zr, err := zip.NewReader(r, size)
		if err != nil {
			return nil, fmt.Errorf("archive: zip: %w", err)
		}
		a.kind, a.zip = Zip, zr
	case bytes.HasPrefix(head, gzipMagic):
		a.kind = TarGz
	case bytes.HasPrefix(head, zstdMagic):
		a.kind = TarZst
	case len(head) >= tarMagicOffset+len(tarMagic) && bytes.Equal(head[tarMagicOffset:], tarMagic):
		a.kind = Tar
	default:
		return nil, ErrUnsupported
	}
	return a, nil
}

// Kind returns the detected container type.
func (a *Archive) Kind() Kind { return a.kind }

// Member opens the named member. It returns nil, nil when no such member exists.
func (a *Archive) Member(name string) (io.ReadCloser, error) {
	want := clean(name)
	if want == "" {
		return nil, nil
	}
	if a.zip != nil {
		for _, f := range a.zip.File {
			if clean(f.Name) == want && !f.FileInfo().IsDir() {
				rc, err := f.Open()
				if err != nil {
					return nil, fmt.Errorf("archive: open %s: %w", name, err)
				}
				return rc, nil
			}
		}
		return nil, nil
	}

	tr, closer, err := a.tar()
	if err != nil {
		return nil, err
	}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			_ = closer()
			return nil, nil
		}
		if err != nil {
			_ = closer()
			return nil, fmt.Errorf("archive: %s: %w", a.kind, err)
		}
		if hdr.Typeflag == tar.TypeReg && clean(hdr.Name) == want {
			return readCloser{Reader: tr, close: closer}, nil
		}
	}
}

// Names lists regular file members in archive order.
func (a *Archive) Names() ([]string, error) {
	var names []string
	if a.zip != nil {
		for _, f := range a.zip.File {
			if !f.FileInfo().IsDir() {
				names = append(names, clean(f.Name))
			}
		}
		return names, nil
	}
	tr, closer, err := a.tar()
	if err != nil {
		return nil, err
	}
	defer closer() //nolint:errcheck // read-only decompressor
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("archive: %s: %w", a.kind, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, clean(hdr.Name))
		}
	}
}

func (a *Archive) tar() (*tar.Reader, func() error, error) {
	raw := io.NewSectionReader(a.r, 0, a.size)
	switch a.kind {
	case Tar:
		return tar.NewReader(raw), func() error { return nil }, nil
	case TarGz:
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("archive: gzip: %w", err)
		}
		return tar.NewReader(gz), gz.Close, nil
	case TarZst:
		zr, err := zstd.NewReader(raw, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("archive: zstd: %w", err)
		}
		return tar.NewReader(zr), func() error { zr.Close(); return nil }, nil
	default:
		return nil, nil, ErrUnsupported
	}
}

func clean(name string) string {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(name), "./")
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }
