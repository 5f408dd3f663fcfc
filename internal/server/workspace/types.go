package workspace

import (
	"strings"
	"time"
)

// Property types used by the schema mapping.
const (
	TypeTitle    = "title"
	TypeRichText = "rich_text"
	TypeEmail    = "email"
	TypeNumber   = "number"
	TypeDate     = "date"
	TypeRelation = "relation"
	TypeSelect   = "select"
	TypeRollup   = "rollup"
)

type Page struct {
	Object         string     `json:"object,omitempty"`
	ID             string     `json:"id"`
	CreatedTime    time.Time  `json:"created_time"`
	LastEditedTime time.Time  `json:"last_edited_time"`
	Archived       bool       `json:"archived,omitempty"`
	Properties     Properties `json:"properties"`
}

// Properties is a page's property bag keyed by display name.
type Properties map[string]PropertyValue

type PropertyValue struct {
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Title    []RichText    `json:"title,omitempty"`
	RichText []RichText    `json:"rich_text,omitempty"`
	Email    *string       `json:"email,omitempty"`
	Number   *float64      `json:"number,omitempty"`
	Date     *DateValue    `json:"date,omitempty"`
	Relation []Reference   `json:"relation,omitempty"`
	Select   *SelectOption `json:"select,omitempty"`
	Rollup   *Rollup       `json:"rollup,omitempty"`
}

type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type TextContent struct {
	Content string `json:"content"`
}

type Reference struct {
	ID string `json:"id"`
}

type DateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

type SelectOption struct {
	Name string `json:"name"`
}

type Rollup struct {
	Type   string          `json:"type"`
	Array  []PropertyValue `json:"array,omitempty"`
	Number *float64        `json:"number,omitempty"`
}

// Database is the schema of a workspace database.
type Database struct {
	ID         string                      `json:"id"`
	Title      []RichText                  `json:"title"`
	Properties map[string]DatabaseProperty `json:"properties"`
}

type DatabaseProperty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Name is the plain text of the database title.
func (d *Database) Name() string {
	return joinPlain(d.Title)
}

// Text returns the plain text of a title or rich_text value, the address of
// an email value, or the first textual element of a rollup.
func (v PropertyValue) Text() string {
	switch {
	case len(v.Title) > 0:
		return joinPlain(v.Title)
	case len(v.RichText) > 0:
		return joinPlain(v.RichText)
	case v.Email != nil:
		return *v.Email
	case v.Rollup != nil:
		for _, item := range v.Rollup.Array {
			if s := item.Text(); s != "" {
				return s
			}
		}
	}
	return ""
}

// IDs returns the related page IDs of a relation value.
func (v PropertyValue) IDs() []string {
	if len(v.Relation) == 0 {
		return nil
	}
	ids := make([]string, 0, len(v.Relation))
	for _, r := range v.Relation {
		ids = append(ids, r.ID)
	}
	return ids
}

func joinPlain(parts []RichText) string {
	var b strings.Builder
	for _, p := range parts {
		switch {
		case p.PlainText != "":
			b.WriteString(p.PlainText)
		case p.Text != nil:
			b.WriteString(p.Text.Content)
		}
	}
	return b.String()
}

// Value builders for page creation.

func TitleValue(s string) PropertyValue {
	return PropertyValue{Title: []RichText{{Text: &TextContent{Content: s}}}}
}

func RichTextValue(s string) PropertyValue {
	return PropertyValue{RichText: []RichText{{Text: &TextContent{Content: s}}}}
}

func EmailValue(s string) PropertyValue {
	return PropertyValue{Email: &s}
}

func NumberValue(f float64) PropertyValue {
	return PropertyValue{Number: &f}
}

func DateValueOf(start string) PropertyValue {
	return PropertyValue{Date: &DateValue{Start: start}}
}

func RelationValue(ids ...string) PropertyValue {
	refs := make([]Reference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, Reference{ID: id})
	}
	return PropertyValue{Relation: refs}
}

func SelectValue(name string) PropertyValue {
	return PropertyValue{Select: &SelectOption{Name: name}}
}
