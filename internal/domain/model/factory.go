package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kailas-cloud/dmodel/internal/domain"
)

// FromPayload decodes a JSON-LD payload and dispatches on its @type.
func FromPayload(payload []byte) (Model, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var node any
	if err := dec.Decode(&node); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedData, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after payload", domain.ErrMalformedData)
	}

	tree, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %s, not an object", domain.ErrMalformedData, jsonKind(node))
	}
	return FromTree(tree)
}

// FromTree builds a model from an already structured tree, validated the same way as FromPayload.
func FromTree(tree map[string]any) (Model, error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: tree is nil", domain.ErrMalformedData)
	}
	raw, ok := tree["@type"]
	if !ok || raw == nil {
		return nil, domain.ErrMissingType
	}
	uri, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: @type must be a string, got %T", domain.ErrMalformedData, raw)
	}
	kind, ok := KindFromTypeURI(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownType, uri)
	}
	return build(kind, tree)
}

// New builds a model of a fixed variant. Any @type in tree is ignored.
func New(kind Kind, tree map[string]any) (Model, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: kind %q", domain.ErrUnknownType, kind)
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: tree is nil", domain.ErrMalformedData)
	}
	return build(kind, tree)
}

func build(kind Kind, tree map[string]any) (Model, error) {
	f := newFields(tree)
	f.get("@type")

	id := f.str("@id")
	if f.err != nil {
		return nil, f.err
	}
	if id == "" {
		return nil, domain.ErrMissingID
	}

	c := parseContent(id, f)

	var m Model
	switch kind {
	case KindContent:
		m = &c
	case KindArticle:
		m = parseArticle(c, f)
	case KindSet:
		m = &Set{Content: c, childTags: f.strs("childTags")}
	case KindMedia:
		media := parseMedia(c, f)
		m = &media
	case KindImage:
		m = &Image{Media: parseMedia(c, f)}
	case KindVideo:
		m = parseVideo(parseMedia(c, f), f)
	case KindAudio:
		m = parseAudio(c, f)
	case KindDictionaryEntry:
		m = &DictionaryEntry{
			Content:      c,
			word:         f.str("word"),
			definition:   f.str("definition"),
			partOfSpeech: f.str("partOfSpeech"),
		}
	default:
		return nil, fmt.Errorf("%w: kind %q", domain.ErrUnknownType, kind)
	}
	if f.err != nil {
		return nil, f.err
	}

	m.Base().extra = f.rest()
	return m, nil
}

// ToTree renders a model back into its JSON-LD tree. FromTree(ToTree(m)) equals m.
func ToTree(m Model) map[string]any {
	tree := make(map[string]any)
	m.encode(tree)
	tree["@type"] = m.Kind().TypeURI()
	return tree
}

// ToPayload renders a model as JSON.
func ToPayload(m Model) ([]byte, error) {
	data, err := json.Marshal(ToTree(m))
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return data, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
