package flow

import (
	"math"
	"strconv"
	"strings"
)

// FieldType is how a form field is rendered by the host.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypePassword FieldType = "password"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeSelect   FieldType = "select"
)

// SelectMode is how a select field's options are presented.
type SelectMode string

const (
	SelectDropdown SelectMode = "dropdown"
	SelectList     SelectMode = "list"
)

// BaseError is the key of errors that belong to the form rather than a field.
const BaseError = "base"

// SelectOption is a single choice of a select field.
type SelectOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field is a single input of a Form.
type Field struct {
	Name     string         `json:"name"`
	Type     FieldType      `json:"type"`
	Required bool           `json:"required"`
	Default  any            `json:"default,omitempty"`
	Mode     SelectMode     `json:"mode,omitempty"`
	Options  []SelectOption `json:"options,omitempty"`
}

// Form is the schema of a step handed to the host for rendering.
type Form struct {
	StepID string            `json:"stepID"`
	Fields []Field           `json:"fields"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Field returns the field with the given name.
func (f Form) Field(name string) (Field, bool) {
	for _, fd := range f.Fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return Field{}, false
}

// Has reports whether the form contains a field with the given name.
func (f Form) Has(name string) bool {
	_, ok := f.Field(name)
	return ok
}

// FormBuilder assembles a Form field by field.
type FormBuilder struct {
	stepID string
	fields []Field
}

// NewForm starts a form for the given step.
func NewForm(stepID string) *FormBuilder {
	return &FormBuilder{stepID: stepID}
}

// String adds a text field. An empty def is left out.
func (b *FormBuilder) String(name string, required bool, def string) *FormBuilder {
	fd := Field{Name: name, Type: FieldTypeString, Required: required}
	if def != "" {
		fd.Default = def
	}
	b.fields = append(b.fields, fd)
	return b
}

// Password adds a password field. Password fields never carry a default.
func (b *FormBuilder) Password(name string, required bool) *FormBuilder {
	b.fields = append(b.fields, Field{Name: name, Type: FieldTypePassword, Required: required})
	return b
}

// Bool adds a toggle.
func (b *FormBuilder) Bool(name string, required bool, def bool) *FormBuilder {
	b.fields = append(b.fields, Field{Name: name, Type: FieldTypeBoolean, Required: required, Default: def})
	return b
}

// Select adds a single-select field. An empty def is left out.
func (b *FormBuilder) Select(name string, required bool, mode SelectMode, options []SelectOption, def string) *FormBuilder {
	fd := Field{Name: name, Type: FieldTypeSelect, Required: required, Mode: mode, Options: options}
	if def != "" {
		fd.Default = def
	}
	b.fields = append(b.fields, fd)
	return b
}

// Build returns the assembled form with the given errors attached.
func (b *FormBuilder) Build(errs map[string]string) *Form {
	fields := make([]Field, len(b.fields))
	copy(fields, b.fields)
	f := &Form{
		StepID: b.stepID,
		Fields: fields,
	}
	if len(errs) > 0 {
		f.Errors = errs
	}
	return f
}

// Input holds the values submitted for a step, keyed by field name. A nil
// Input means the step was entered without submitting anything.
type Input map[string]any

// String returns the trimmed string value of key. Missing, empty or
// non-string values return false.
func (in Input) String(key string) (string, bool) {
	v, ok := in[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case float64:
		// JSON numbers, contract ids are sometimes sent unquoted
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10), true
		}
		return "", false
	case int:
		return strconv.Itoa(s), true
	default:
		return "", false
	}
}

// Secret returns the untrimmed string value of key.
func (in Input) Secret(key string) (string, bool) {
	s, ok := in[key].(string)
	return s, ok && s != ""
}

// Bool returns the boolean value of key and whether it was present and a
// boolean.
func (in Input) Bool(key string) (bool, bool) {
	b, ok := in[key].(bool)
	return b, ok
}

// Int returns key as an integer. Strings, JSON numbers and ints are accepted.
func (in Input) Int(key string) (int, bool) {
	switch v := in[key].(type) {
	case int:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Has reports whether key was submitted with a non-nil value.
func (in Input) Has(key string) bool {
	v, ok := in[key]
	return ok && v != nil
}
