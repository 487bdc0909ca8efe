package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/mdv/internal/collection"
	"github.com/amirbrooks/mdv/internal/frontmatter"
)

// SchemaFile is the schema location relative to the vault root.
const SchemaFile = "schema.yaml"

// Field types.
const (
	FieldString = "string"
	FieldNumber = "number"
	FieldBool   = "bool"
	FieldList   = "list"
	FieldEnum   = "enum"
	FieldDate   = "date"
)

const dateLayout = "2006-01-02"

// Schema declares the document types of a vault.
type Schema struct {
	Types map[string]TypeDef `yaml:"types"`
}

// TypeDef declares where documents of a type live and what fields they carry.
type TypeDef struct {
	Folder string              `yaml:"folder"`
	Fields map[string]FieldDef `yaml:"fields"`
}

type FieldDef struct {
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Values   []string `yaml:"values"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// Validate checks the field definition itself.
func (f FieldDef) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Type, validation.In(FieldString, FieldNumber, FieldBool, FieldList, FieldEnum, FieldDate)),
		validation.Field(&f.Values, validation.Required.When(f.Type == FieldEnum).Error("enum fields need values")),
	)
}

// Validate checks every field definition of every type.
func (s *Schema) Validate() error {
	errs := validation.Errors{}
	for name, def := range s.Types {
		for field, fd := range def.Fields {
			if err := fd.Validate(); err != nil {
				errs[name+"."+field] = err
			}
		}
	}
	return errs.Filter()
}

// loadSchema reads schema.yaml from root. A missing file yields an empty schema.
func loadSchema(root string) (*Schema, error) {
	b, err := os.ReadFile(filepath.Join(root, SchemaFile))
	if errors.Is(err, os.ErrNotExist) {
		return &Schema{}, nil
	}
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", collection.ErrInvalid, SchemaFile, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", collection.ErrInvalid, SchemaFile, err)
	}
	return &s, nil
}

// Defines reports whether the schema declares any types at all.
func (s *Schema) Defines() bool { return len(s.Types) > 0 }

func (s *Schema) lookup(typ string) (TypeDef, bool) {
	def, ok := s.Types[typ]
	return def, ok
}

// FolderFor returns the folder new documents of typ are written to.
func (s *Schema) FolderFor(typ string) string {
	if def, ok := s.lookup(typ); ok && strings.TrimSpace(def.Folder) != "" {
		return strings.Trim(filepath.ToSlash(def.Folder), "/")
	}
	return typ
}

// check validates frontmatter against the type definition and returns one
// error per failing field.
func (t TypeDef) check(fm frontmatter.Map) validation.Errors {
	errs := validation.Errors{}
	for name, fd := range t.Fields {
		if err := fd.check(fm.Get(name)); err != nil {
			errs[name] = err
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (f FieldDef) check(v frontmatter.Value) error {
	if err := validation.Validate(v.Raw(), validation.Required.When(f.Required)); err != nil {
		return err
	}
	if v.IsAbsent() {
		return nil
	}
	switch f.Type {
	case "", FieldString:
		if _, ok := v.AsString(); !ok {
			return mustBe("a string", v)
		}
	case FieldNumber:
		n, ok := v.AsNumber()
		if !ok {
			return mustBe("a number", v)
		}
		var rules []validation.Rule
		if f.Min != nil {
			rules = append(rules, validation.Min(*f.Min))
		}
		if f.Max != nil {
			rules = append(rules, validation.Max(*f.Max))
		}
		return validation.Validate(n, rules...)
	case FieldBool:
		if _, ok := v.AsBool(); !ok {
			return mustBe("true or false", v)
		}
	case FieldList:
		if _, ok := v.AsList(); !ok {
			return mustBe("a list", v)
		}
	case FieldEnum:
		s, ok := v.AsString()
		if !ok {
			return mustBe("a string", v)
		}
		allowed := make([]any, len(f.Values))
		for i, val := range f.Values {
			allowed[i] = val
		}
		return validation.Validate(s, validation.In(allowed...).Error("must be one of: "+strings.Join(f.Values, ", ")))
	case FieldDate:
		s, ok := v.AsString()
		if !ok {
			return mustBe("a date", v)
		}
		return validation.Validate(s, validation.Date(dateLayout).Error("must be a date (YYYY-MM-DD)"))
	}
	return nil
}

func mustBe(what string, v frontmatter.Value) error {
	return validation.NewError("validation_kind", fmt.Sprintf("must be %s, got %s", what, v.Kind()))
}

// problems flattens field errors into sorted validation findings for path.
func problems(path string, errs validation.Errors) []collection.Problem {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]collection.Problem, 0, len(keys))
	for _, k := range keys {
		out = append(out, collection.Problem{Path: path, Message: fmt.Sprintf("%s: %v", k, errs[k])})
	}
	return out
}

// StarterSchema is written by the init command.
const StarterSchema = `# Document types for this vault.
# Field types: string, number, bool, list, enum, date.
types:
  task:
    folder: tasks
    fields:
      title:    {type: string, required: true}
      status:   {type: enum, values: [open, in-progress, blocked, done, cancelled]}
      priority: {type: number, min: 1, max: 5}
      due:      {type: date}
      tags:     {type: list}
  note:
    folder: notes
    fields:
      title: {type: string, required: true}
      tags:  {type: list}
  fleeting:
    folder: inbox
    fields:
      id:       {type: string, required: true}
      status:   {type: enum, values: [unprocessed, processed]}
      captured: {type: string, required: true}
      context:  {type: string}
      source:   {type: string}
`
