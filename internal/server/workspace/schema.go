package workspace

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Logical databases.
const (
	Employees = "employees"
	Projects  = "projects"
	Tasks     = "tasks"
	Timesheet = "timesheet"
)

// Logical fields.
const (
	FieldName       = "name"
	FieldEmail      = "email"
	FieldHourlyRate = "hourly_rate"
	FieldStatus     = "status"
	FieldProjects   = "projects"
	FieldTasks      = "tasks"
	FieldEmployee   = "employee"
	FieldDate       = "date"
	FieldHours      = "hours"
	FieldNotes      = "notes"
)

// requiredFields lists the logical fields every database mapping must define.
var requiredFields = map[string][]string{
	Employees: {FieldName, FieldEmail},
	Projects:  {FieldName},
	Tasks:     {FieldName, FieldProjects},
	Timesheet: {FieldProjects, FieldTasks, FieldEmployee, FieldDate, FieldHours, FieldNotes},
}

// Field maps a logical field to a remote property. Type may list
// alternatives separated by "|" (e.g. "email|rich_text").
type Field struct {
	Property string `yaml:"property"`
	Type     string `yaml:"type"`
}

// Accepts reports whether a remote property of type t satisfies the field.
func (f Field) Accepts(t string) bool {
	return slices.Contains(strings.Split(f.Type, "|"), t)
}

// Primary is the first accepted type, used when writing values.
func (f Field) Primary() string {
	t, _, _ := strings.Cut(f.Type, "|")
	return t
}

type DatabaseSchema struct {
	ID     string           `yaml:"id"`
	Fields map[string]Field `yaml:"fields"`
}

// Schema is the mapping table from logical databases and fields to the
// remote workspace's IDs and property names.
type Schema struct {
	Databases map[string]DatabaseSchema `yaml:"databases"`
}

// DefaultSchema returns the mapping used by the production workspace.
// Database IDs are empty and must be supplied by configuration.
func DefaultSchema() *Schema {
	return &Schema{Databases: map[string]DatabaseSchema{
		Employees: {Fields: map[string]Field{
			FieldName:       {Property: "Full Name", Type: TypeTitle},
			FieldEmail:      {Property: "Email", Type: TypeEmail + "|" + TypeRichText},
			FieldHourlyRate: {Property: "Hourly Rate", Type: TypeNumber},
			FieldStatus:     {Property: "Status", Type: TypeSelect},
		}},
		Projects: {Fields: map[string]Field{
			FieldName: {Property: "Job Name", Type: TypeTitle},
		}},
		Tasks: {Fields: map[string]Field{
			FieldName:     {Property: "Phase Name", Type: TypeTitle},
			FieldProjects: {Property: "📔 Projects", Type: TypeRelation},
		}},
		Timesheet: {Fields: map[string]Field{
			FieldProjects: {Property: "📔 Projects", Type: TypeRelation},
			FieldTasks:    {Property: "☑️ Tasks/Phases", Type: TypeRelation},
			FieldEmployee: {Property: "👨🏻‍💼 Employees", Type: TypeRelation},
			FieldDate:     {Property: "Date", Type: TypeDate},
			FieldHours:    {Property: "⌛ Hours Worked", Type: TypeNumber},
			FieldNotes:    {Property: "Notes", Type: TypeTitle},
		}},
	}}
}

// LoadSchema reads a YAML mapping file. Databases and fields it omits keep
// their defaults.
func LoadSchema(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var file Schema
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}

	s := DefaultSchema()
	for name, db := range file.Databases {
		base := s.Databases[name]
		if base.Fields == nil {
			base.Fields = map[string]Field{}
		}
		if db.ID != "" {
			base.ID = db.ID
		}
		for field, f := range db.Fields {
			base.Fields[field] = f
		}
		s.Databases[name] = base
	}
	return s, nil
}

// WithIDs sets the database IDs that are non-empty in ids.
func (s *Schema) WithIDs(ids map[string]string) *Schema {
	for name, id := range ids {
		if id == "" {
			continue
		}
		db := s.Databases[name]
		db.ID = id
		s.Databases[name] = db
	}
	return s
}

// Validate checks that every logical database has an ID and every required
// field is mapped to a property with a type.
func (s *Schema) Validate() error {
	var errs []error
	for _, name := range []string{Employees, Projects, Tasks, Timesheet} {
		db, ok := s.Databases[name]
		if !ok {
			errs = append(errs, fmt.Errorf("database %q is not mapped", name))
			continue
		}
		if db.ID == "" {
			errs = append(errs, fmt.Errorf("database %q has no id", name))
		}
		for _, field := range requiredFields[name] {
			f, ok := db.Fields[field]
			if !ok || f.Property == "" || f.Type == "" {
				errs = append(errs, fmt.Errorf("database %q: field %q is not mapped", name, field))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Schema) ID(db string) string {
	return s.Databases[db].ID
}

func (s *Schema) Field(db, field string) (Field, bool) {
	f, ok := s.Databases[db].Fields[field]
	return f, ok
}

// Names returns the logical database names in a stable order.
func (s *Schema) Names() []string {
	names := make([]string, 0, len(s.Databases))
	for name := range s.Databases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
