package model

import "slices"

// Set groups content by tag.
type Set struct {
	Content
	childTags []string
}

// Kind returns KindSet.
func (s *Set) Kind() Kind { return KindSet }

// ChildTags returns the tags of the set members.
func (s *Set) ChildTags() []string { return slices.Clone(s.childTags) }

func (s *Set) encode(tree map[string]any) {
	s.Content.encode(tree)
	putStrings(tree, "childTags", s.childTags)
}

// DictionaryEntry is a word with its definition.
type DictionaryEntry struct {
	Content
	word         string
	definition   string
	partOfSpeech string
}

// Kind returns KindDictionaryEntry.
func (d *DictionaryEntry) Kind() Kind { return KindDictionaryEntry }

// Word returns the defined word.
func (d *DictionaryEntry) Word() string { return d.word }

// Definition returns the definition text.
func (d *DictionaryEntry) Definition() string { return d.definition }

// PartOfSpeech returns the grammatical category.
func (d *DictionaryEntry) PartOfSpeech() string { return d.partOfSpeech }

func (d *DictionaryEntry) encode(tree map[string]any) {
	d.Content.encode(tree)
	putString(tree, "word", d.word)
	putString(tree, "definition", d.definition)
	putString(tree, "partOfSpeech", d.partOfSpeech)
}
