package workspace

// Filter is a database query filter. Exactly one of the condition fields
// is set, or Or/And for compound filters.
type Filter struct {
	Property string          `json:"property,omitempty"`
	Relation *RelationFilter `json:"relation,omitempty"`
	Date     *DateFilter     `json:"date,omitempty"`
	Email    *TextFilter     `json:"email,omitempty"`
	RichText *TextFilter     `json:"rich_text,omitempty"`
	Title    *TextFilter     `json:"title,omitempty"`
	Or       []Filter        `json:"or,omitempty"`
	And      []Filter        `json:"and,omitempty"`
}

type RelationFilter struct {
	Contains string `json:"contains"`
}

type DateFilter struct {
	IsNotEmpty bool `json:"is_not_empty,omitempty"`
}

type TextFilter struct {
	Equals string `json:"equals"`
}

type Sort struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

const (
	Ascending  = "ascending"
	Descending = "descending"
)

// Any combines filters with "or"; a single filter is returned as is.
func Any(filters ...Filter) *Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return &filters[0]
	}
	return &Filter{Or: filters}
}
