package workspace

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/server/models"
)

// SchemaError reports a page property whose type does not match the
// mapping table.
type SchemaError struct {
	Database string
	Field    string
	Property string
	Got      string
	Want     string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("workspace schema: %s.%s (%q) has type %q, want %q",
		e.Database, e.Field, e.Property, e.Got, e.Want)
}

// RawEntry is a timesheet page decoded through the schema; relations are
// still page IDs.
type RawEntry struct {
	ID          string
	ProjectIDs  []string
	TaskIDs     []string
	EmployeeIDs []string
	Date        string
	Hours       float64
	Notes       string
	CreatedTime time.Time
}

// NewEntry is one timesheet page to create.
type NewEntry struct {
	ProjectIDs []string
	TaskID     string
	EmployeeID string
	Date       string
	Hours      float64
	Notes      string
}

// NewEmployee is one employee page to create.
type NewEmployee struct {
	Name       string
	Email      string
	HourlyRate *float64
	Status     string
}

// Codec translates between workspace pages and domain records using a Schema.
type Codec struct {
	schema *Schema
}

func NewCodec(schema *Schema) *Codec {
	return &Codec{schema: schema}
}

func (c *Codec) Schema() *Schema {
	return c.schema
}

// value looks up a mapped property on p. A missing property yields the zero
// value; a property of the wrong type yields a *SchemaError.
func (c *Codec) value(p Page, db, field string) (PropertyValue, error) {
	f, ok := c.schema.Field(db, field)
	if !ok {
		return PropertyValue{}, nil
	}
	v, ok := p.Properties[f.Property]
	if !ok {
		return PropertyValue{}, nil
	}
	if v.Type != "" && !f.Accepts(v.Type) {
		return PropertyValue{}, &SchemaError{Database: db, Field: field, Property: f.Property, Got: v.Type, Want: f.Type}
	}
	return v, nil
}

func (c *Codec) values(p Page, db string, fields ...string) (map[string]PropertyValue, error) {
	out := make(map[string]PropertyValue, len(fields))
	for _, field := range fields {
		v, err := c.value(p, db, field)
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", p.ID, err)
		}
		out[field] = v
	}
	return out, nil
}

func (c *Codec) Employee(p Page) (models.Employee, error) {
	v, err := c.values(p, Employees, FieldName, FieldEmail, FieldHourlyRate, FieldStatus)
	if err != nil {
		return models.Employee{}, err
	}
	e := models.Employee{
		ID:         p.ID,
		Name:       v[FieldName].Text(),
		Email:      v[FieldEmail].Text(),
		HourlyRate: v[FieldHourlyRate].Number,
	}
	if s := v[FieldStatus].Select; s != nil {
		e.Status = s.Name
	}
	return e, nil
}

func (c *Codec) Project(p Page) (models.Project, error) {
	v, err := c.values(p, Projects, FieldName)
	if err != nil {
		return models.Project{}, err
	}
	return models.Project{ID: p.ID, Name: v[FieldName].Text()}, nil
}

func (c *Codec) Task(p Page) (models.Task, error) {
	v, err := c.values(p, Tasks, FieldName, FieldProjects)
	if err != nil {
		return models.Task{}, err
	}
	projectIDs := v[FieldProjects].IDs()
	if projectIDs == nil {
		projectIDs = []string{}
	}
	return models.Task{ID: p.ID, Name: v[FieldName].Text(), ProjectIDs: projectIDs}, nil
}

func (c *Codec) Entry(p Page) (RawEntry, error) {
	v, err := c.values(p, Timesheet, FieldProjects, FieldTasks, FieldEmployee, FieldDate, FieldHours, FieldNotes)
	if err != nil {
		return RawEntry{}, err
	}
	e := RawEntry{
		ID:          p.ID,
		ProjectIDs:  v[FieldProjects].IDs(),
		TaskIDs:     v[FieldTasks].IDs(),
		EmployeeIDs: v[FieldEmployee].IDs(),
		Notes:       v[FieldNotes].Text(),
		CreatedTime: p.CreatedTime,
	}
	if d := v[FieldDate].Date; d != nil {
		e.Date = d.Start
	}
	if n := v[FieldHours].Number; n != nil {
		e.Hours = *n
	}
	return e, nil
}

// Title returns the display name of a page from logical database db: the
// mapped name field, or else the page's first title property.
func (c *Codec) Title(db string, p Page) string {
	if v, err := c.value(p, db, FieldName); err == nil {
		if s := v.Text(); s != "" {
			return s
		}
	}
	for _, v := range p.Properties {
		if v.Type == TypeTitle {
			return v.Text()
		}
	}
	return ""
}

// EntryProperties encodes one timesheet page. Every page carries the full
// project list.
func (c *Codec) EntryProperties(e NewEntry) Properties {
	props := Properties{}
	c.set(props, Timesheet, FieldProjects, RelationValue(e.ProjectIDs...))
	c.set(props, Timesheet, FieldTasks, RelationValue(e.TaskID))
	c.set(props, Timesheet, FieldEmployee, RelationValue(e.EmployeeID))
	c.set(props, Timesheet, FieldDate, DateValueOf(e.Date))
	c.set(props, Timesheet, FieldHours, NumberValue(e.Hours))
	c.setText(props, Timesheet, FieldNotes, e.Notes)
	return props
}

func (c *Codec) EmployeeProperties(e NewEmployee) Properties {
	props := Properties{}
	c.setText(props, Employees, FieldName, e.Name)
	c.setText(props, Employees, FieldEmail, e.Email)
	if e.HourlyRate != nil {
		c.set(props, Employees, FieldHourlyRate, NumberValue(*e.HourlyRate))
	}
	if e.Status != "" {
		c.set(props, Employees, FieldStatus, SelectValue(e.Status))
	}
	return props
}

func (c *Codec) set(props Properties, db, field string, v PropertyValue) {
	if f, ok := c.schema.Field(db, field); ok {
		props[f.Property] = v
	}
}

func (c *Codec) setText(props Properties, db, field, s string) {
	f, ok := c.schema.Field(db, field)
	if !ok {
		return
	}
	switch f.Primary() {
	case TypeTitle:
		props[f.Property] = TitleValue(s)
	case TypeEmail:
		props[f.Property] = EmailValue(s)
	default:
		props[f.Property] = RichTextValue(s)
	}
}

// EmployeeEmailFilter matches employees by exact email.
func (c *Codec) EmployeeEmailFilter(email string) *Filter {
	f, _ := c.schema.Field(Employees, FieldEmail)
	cond := &TextFilter{Equals: email}
	if f.Primary() == TypeEmail {
		return &Filter{Property: f.Property, Email: cond}
	}
	return &Filter{Property: f.Property, RichText: cond}
}

// TaskProjectFilter matches tasks related to any of projectIDs.
func (c *Codec) TaskProjectFilter(projectIDs ...string) *Filter {
	f, _ := c.schema.Field(Tasks, FieldProjects)
	filters := make([]Filter, 0, len(projectIDs))
	for _, id := range projectIDs {
		filters = append(filters, Filter{Property: f.Property, Relation: &RelationFilter{Contains: id}})
	}
	return Any(filters...)
}

func (c *Codec) EntryDateNotEmpty() *Filter {
	f, _ := c.schema.Field(Timesheet, FieldDate)
	return &Filter{And: []Filter{{Property: f.Property, Date: &DateFilter{IsNotEmpty: true}}}}
}

func (c *Codec) EntryDateSort(direction string) []Sort {
	f, _ := c.schema.Field(Timesheet, FieldDate)
	return []Sort{{Property: f.Property, Direction: direction}}
}

func (c *Codec) NameSort(db string) []Sort {
	f, ok := c.schema.Field(db, FieldName)
	if !ok {
		return nil
	}
	return []Sort{{Property: f.Property, Direction: Ascending}}
}
