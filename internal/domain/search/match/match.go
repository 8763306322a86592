package match

// Match selects which document fields search terms are tested against.
type Match string

// Match constants.
const (
	// OnlyTitle matches terms against the title only.
	OnlyTitle Match = "title"
	// TitleSynopsis matches terms against the title, synopsis and body text.
	TitleSynopsis Match = "title_synopsis"
)

// IsValid checks if the match is one of the supported values.
func (m Match) IsValid() bool {
	return m == OnlyTitle || m == TitleSynopsis
}

// Mode selects how the last search term is treated.
type Mode string

// Mode constants.
const (
	// Incremental treats the last term as a prefix, for search-as-you-type.
	Incremental Mode = "incremental"
	// Delimited matches every term as a whole word.
	Delimited Mode = "delimited"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Incremental || m == Delimited
}
