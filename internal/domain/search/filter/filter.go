package filter

import "fmt"

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 64

// Field is the document attribute a condition tests.
type Field string

// Filterable fields.
const (
	Tag         Field = "tag"
	ID          Field = "id"
	ContentType Field = "content_type"
)

// IsValid checks if the field is filterable.
func (f Field) IsValid() bool {
	return f == Tag || f == ID || f == ContentType
}

// Subject is anything a condition can be evaluated against.
type Subject interface {
	Has(f Field, value string) bool
}

// Expression is a structured filter with must/should/must_not boolean semantics.
// must: all hold; should: at least one holds when non-empty; must_not: none holds.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// Matches evaluates the expression against s. An empty expression matches everything.
func (e Expression) Matches(s Subject) bool {
	for _, c := range e.must {
		if !c.holds(s) {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.holds(s) {
			return false
		}
	}
	if len(e.should) == 0 {
		return true
	}
	for _, c := range e.should {
		if c.holds(s) {
			return true
		}
	}
	return false
}

// Condition is a single exact-match clause on one field.
type Condition struct {
	field Field
	value string
}

// NewMatch creates an exact match condition.
func NewMatch(field Field, value string) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("filter field is required")
	}
	if !field.IsValid() {
		return Condition{}, fmt.Errorf("unknown filter field %q", field)
	}
	if value == "" {
		return Condition{}, fmt.Errorf("match value is required for field %q", field)
	}
	return Condition{field: field, value: value}, nil
}

// Matches builds one condition per value, skipping empty values.
func Matches(field Field, values ...string) ([]Condition, error) {
	var out []Condition
	for _, v := range values {
		if v == "" {
			continue
		}
		c, err := NewMatch(field, v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Field returns the tested field.
func (c Condition) Field() Field { return c.field }

// Value returns the exact match value.
func (c Condition) Value() string { return c.value }

func (c Condition) holds(s Subject) bool { return s.Has(c.field, c.value) }

// String renders the condition as field:value.
func (c Condition) String() string { return string(c.field) + ":" + c.value }
