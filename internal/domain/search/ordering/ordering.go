// Package ordering defines result sort keys and directions.
package ordering

// Sort is the key results are ordered by.
type Sort string

// Sort constants.
const (
	Relevance      Sort = "relevance"
	SequenceNumber Sort = "sequence_number"
	Date           Sort = "date"
	Alphabetical   Sort = "alphabetical"
)

// IsValid checks if the sort is one of the supported values.
func (s Sort) IsValid() bool {
	switch s {
	case Relevance, SequenceNumber, Date, Alphabetical:
		return true
	}
	return false
}

// Order is the sort direction.
type Order string

// Order constants.
const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// IsValid checks if the order is one of the supported values.
func (o Order) IsValid() bool {
	return o == Ascending || o == Descending
}
