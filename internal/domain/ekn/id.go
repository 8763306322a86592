// Package ekn parses content identifiers of the form ekn:///<hash> and
// ekn+zim:///<namespace>/<path>.
package ekn

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/dmodel/internal/domain"
)

// Scheme selects how an identifier is looked up inside a shard.
type Scheme string

// Supported identifier schemes.
const (
	// Hash addresses records by a 40 hex digit content hash.
	Hash Scheme = "ekn"
	// Zim addresses records by namespace and path inside a ZIM archive.
	Zim Scheme = "ekn+zim"
)

// HashLen is the length of a hex record hash.
const HashLen = 40

// ID is a parsed, validated content identifier.
type ID struct {
	scheme    Scheme
	authority string
	hash      string
	resource  string
	namespace byte
	path      string
}

// Parse validates an identifier string. Malformed input fails with domain.ErrInvalidID.
//
// Accepted forms:
//
//	ekn:///<hash>
//	ekn://<authority>/<hash>[/<resource>]
//	ekn+zim:///<namespace>/<path>
func Parse(s string) (ID, error) {
	switch {
	case strings.HasPrefix(s, string(Zim)+"://"):
		return parseZim(s, strings.TrimPrefix(s, string(Zim)+"://"))
	case strings.HasPrefix(s, string(Hash)+"://"):
		return parseHash(s, strings.TrimPrefix(s, string(Hash)+"://"))
	default:
		return ID{}, fmt.Errorf("%w: unsupported scheme in %q", domain.ErrInvalidID, s)
	}
}

func parseHash(raw, rest string) (ID, error) {
	authority, rest, ok := strings.Cut(rest, "/")
	if !ok {
		return ID{}, fmt.Errorf("%w: missing hash in %q", domain.ErrInvalidID, raw)
	}
	hash, resource, _ := strings.Cut(rest, "/")
	if !IsValidHash(hash) {
		return ID{}, fmt.Errorf("%w: %q is not a %d digit hex hash", domain.ErrInvalidID, hash, HashLen)
	}
	return ID{
		scheme:    Hash,
		authority: authority,
		hash:      strings.ToLower(hash),
		resource:  resource,
	}, nil
}

func parseZim(raw, rest string) (ID, error) {
	rest, ok := strings.CutPrefix(rest, "/")
	if !ok {
		return ID{}, fmt.Errorf("%w: zim id must have an empty authority: %q", domain.ErrInvalidID, raw)
	}
	ns, path, ok := strings.Cut(rest, "/")
	if !ok || len(ns) != 1 || path == "" {
		return ID{}, fmt.Errorf("%w: expected <namespace>/<path> in %q", domain.ErrInvalidID, raw)
	}
	return ID{scheme: Zim, namespace: ns[0], path: path}, nil
}

// FromHash builds a hash identifier.
func FromHash(hash string) (ID, error) {
	if !IsValidHash(hash) {
		return ID{}, fmt.Errorf("%w: %q is not a %d digit hex hash", domain.ErrInvalidID, hash, HashLen)
	}
	return ID{scheme: Hash, hash: strings.ToLower(hash)}, nil
}

// FromZimPath builds a ZIM identifier.
func FromZimPath(namespace byte, path string) ID {
	return ID{scheme: Zim, namespace: namespace, path: path}
}

// IsValidHash reports whether s is exactly HashLen hex digits.
func IsValidHash(s string) bool {
	if len(s) != HashLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// Scheme returns the identifier scheme.
func (id ID) Scheme() Scheme { return id.scheme }

// Hash returns the lowercase hex hash (hash scheme only).
func (id ID) Hash() string { return id.hash }

// Resource returns the optional resource name following the hash.
func (id ID) Resource() string { return id.resource }

// Namespace returns the ZIM namespace (zim scheme only).
func (id ID) Namespace() byte { return id.namespace }

// Path returns the ZIM path without namespace (zim scheme only).
func (id ID) Path() string { return id.path }

// Key is the lookup key handed to a shard: the hash, or "<namespace>/<path>".
func (id ID) Key() string {
	if id.scheme == Zim {
		return string(id.namespace) + "/" + id.path
	}
	return id.hash
}

// Record returns the identifier without its resource part.
func (id ID) Record() ID {
	id.resource = ""
	id.authority = ""
	return id
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool { return id.scheme == "" }

// String returns the canonical form.
func (id ID) String() string {
	switch id.scheme {
	case Zim:
		return string(Zim) + ":///" + id.Key()
	case Hash:
		s := string(Hash) + "://" + id.authority + "/" + id.hash
		if id.resource != "" {
			s += "/" + id.resource
		}
		return s
	default:
		return ""
	}
}
