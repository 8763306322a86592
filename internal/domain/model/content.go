// Package model holds the typed content objects stored in shards.
//
// Model is a closed union: Content and its variants Article, Set, Media, Image,
// Video, Audio and DictionaryEntry. Models are immutable once constructed.
package model

import (
	"maps"
	"slices"
)

// Model is implemented by every content variant.
type Model interface {
	// Kind returns the variant discriminant.
	Kind() Kind
	// Base returns the attributes shared by all variants.
	Base() *Content

	encode(tree map[string]any)
}

// Content is the base content object. Other variants embed it.
type Content struct {
	id                   string
	title                string
	originalTitle        string
	originalURI          string
	thumbnailURI         string
	language             string
	copyrightHolder      string
	sourceURI            string
	contentType          string
	synopsis             string
	lastModifiedDate     string
	license              string
	featured             bool
	tags                 []string
	resources            []string
	discoveryFeedContent map[string]any
	sequenceNumber       int
	hasSequenceNumber    bool
	canPrint             bool
	canExport            bool
	isServerTemplated    bool
	extra                map[string]any
}

func parseContent(id string, f *fields) Content {
	c := Content{
		id:                   id,
		title:                f.str("title"),
		originalTitle:        f.str("originalTitle"),
		originalURI:          f.str("originalURI"),
		thumbnailURI:         f.str("thumbnail"),
		language:             f.str("language"),
		copyrightHolder:      f.str("copyrightHolder"),
		sourceURI:            f.str("sourceURI"),
		contentType:          f.str("contentType"),
		synopsis:             f.str("synopsis"),
		lastModifiedDate:     f.str("lastModifiedDate"),
		license:              f.str("license"),
		featured:             f.boolean("featured", false),
		tags:                 f.strs("tags"),
		resources:            f.strs("resources"),
		discoveryFeedContent: f.object("discoveryFeedContent"),
		canPrint:             f.boolean("canPrint", true),
		canExport:            f.boolean("canExport", true),
		isServerTemplated:    f.boolean("isServerTemplated", false),
	}
	c.sequenceNumber, c.hasSequenceNumber = f.count("sequenceNumber")
	return c
}

// Kind returns KindContent.
func (c *Content) Kind() Kind { return KindContent }

// Base returns the content itself.
func (c *Content) Base() *Content { return c }

// ID returns the ekn identifier.
func (c *Content) ID() string { return c.id }

// Title returns the display title.
func (c *Content) Title() string { return c.title }

// OriginalTitle returns the title in the source publication.
func (c *Content) OriginalTitle() string { return c.originalTitle }

// OriginalURI returns the URI the content was retrieved from.
func (c *Content) OriginalURI() string { return c.originalURI }

// ThumbnailURI returns the ekn id of the thumbnail image.
func (c *Content) ThumbnailURI() string { return c.thumbnailURI }

// Language returns the content language code.
func (c *Content) Language() string { return c.language }

// CopyrightHolder returns the copyright holder.
func (c *Content) CopyrightHolder() string { return c.copyrightHolder }

// SourceURI returns the source URI.
func (c *Content) SourceURI() string { return c.sourceURI }

// ContentType returns the MIME type of the data blob.
func (c *Content) ContentType() string { return c.contentType }

// Synopsis returns the short summary.
func (c *Content) Synopsis() string { return c.synopsis }

// LastModifiedDate returns the last modification date string.
func (c *Content) LastModifiedDate() string { return c.lastModifiedDate }

// License returns the license name.
func (c *Content) License() string { return c.license }

// Featured reports whether the content is featured.
func (c *Content) Featured() bool { return c.featured }

// Tags returns the content tags.
func (c *Content) Tags() []string { return slices.Clone(c.tags) }

// HasTag reports whether tag is present.
func (c *Content) HasTag(tag string) bool { return slices.Contains(c.tags, tag) }

// Resources returns ekn ids of resources referenced by the content.
func (c *Content) Resources() []string { return slices.Clone(c.resources) }

// DiscoveryFeedContent returns the nested discovery feed tree, or nil.
func (c *Content) DiscoveryFeedContent() map[string]any {
	return deepCopy(c.discoveryFeedContent)
}

// SequenceNumber returns the ordering number and whether it was set.
func (c *Content) SequenceNumber() (int, bool) { return c.sequenceNumber, c.hasSequenceNumber }

// CanPrint reports whether printing is allowed.
func (c *Content) CanPrint() bool { return c.canPrint }

// CanExport reports whether exporting is allowed.
func (c *Content) CanExport() bool { return c.canExport }

// IsServerTemplated reports whether the HTML was rendered server side (ZIM content).
func (c *Content) IsServerTemplated() bool { return c.isServerTemplated }

// Extra returns unrecognized fields, preserved as read.
func (c *Content) Extra() map[string]any { return deepCopy(c.extra) }

func (c *Content) encode(tree map[string]any) {
	for k, v := range c.extra {
		tree[k] = deepCopyValue(v)
	}
	tree["@id"] = c.id
	putString(tree, "title", c.title)
	putString(tree, "originalTitle", c.originalTitle)
	putString(tree, "originalURI", c.originalURI)
	putString(tree, "thumbnail", c.thumbnailURI)
	putString(tree, "language", c.language)
	putString(tree, "copyrightHolder", c.copyrightHolder)
	putString(tree, "sourceURI", c.sourceURI)
	putString(tree, "contentType", c.contentType)
	putString(tree, "synopsis", c.synopsis)
	putString(tree, "lastModifiedDate", c.lastModifiedDate)
	putString(tree, "license", c.license)
	putStrings(tree, "tags", c.tags)
	putStrings(tree, "resources", c.resources)
	if c.featured {
		tree["featured"] = true
	}
	if c.discoveryFeedContent != nil {
		tree["discoveryFeedContent"] = deepCopy(c.discoveryFeedContent)
	}
	if c.hasSequenceNumber {
		tree["sequenceNumber"] = int64(c.sequenceNumber)
	}
	if !c.canPrint {
		tree["canPrint"] = false
	}
	if !c.canExport {
		tree["canExport"] = false
	}
	if c.isServerTemplated {
		tree["isServerTemplated"] = true
	}
}

func putString(tree map[string]any, key, v string) {
	if v != "" {
		tree[key] = v
	}
}

func putStrings(tree map[string]any, key string, v []string) {
	if v == nil {
		return
	}
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	tree[key] = out
}

func putCount(tree map[string]any, key string, v int, ok bool) {
	if ok {
		tree[key] = int64(v)
	}
}

func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := deepCopyValue(m).(map[string]any)
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := maps.Clone(t)
		for k, item := range out {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := slices.Clone(t)
		for i, item := range out {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
