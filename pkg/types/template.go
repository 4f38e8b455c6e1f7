package types

import (
	"encoding/json"
	"fmt"
)

// FieldType enumerates the kinds a template field descriptor can take
type FieldType string

const (
	FieldTitle     FieldType = "Title"
	FieldCheckBox  FieldType = "CheckBox"
	FieldRating    FieldType = "Rating"
	FieldNumber    FieldType = "Number"
	FieldShortText FieldType = "ShortText"
	FieldLongText  FieldType = "LongText"
)

// FieldDescriptor is a template field's declared type. Rating carries its
// bounds; every other kind is bare.
type FieldDescriptor struct {
	Kind FieldType
	Min  int64
	Max  int64
}

// MarshalJSON encodes bare kinds as a string and Rating as
// {"Rating":{"min":..,"max":..}}, the externally tagged layout the
// original clients produce.
func (d FieldDescriptor) MarshalJSON() ([]byte, error) {
	if d.Kind == FieldRating {
		return json.Marshal(map[string]ratingBounds{"Rating": {Min: d.Min, Max: d.Max}})
	}
	return json.Marshal(string(d.Kind))
}

func (d *FieldDescriptor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch FieldType(s) {
		case FieldTitle, FieldCheckBox, FieldNumber, FieldShortText, FieldLongText:
			d.Kind = FieldType(s)
			return nil
		}
		return fmt.Errorf("unknown field type %q: %w", s, ErrDecode)
	}

	var tagged map[string]ratingBounds
	if err := json.Unmarshal(data, &tagged); err != nil || len(tagged) != 1 {
		return fmt.Errorf("malformed field type %s: %w", data, ErrDecode)
	}
	bounds, ok := tagged["Rating"]
	if !ok {
		return fmt.Errorf("malformed field type %s: %w", data, ErrDecode)
	}
	d.Kind = FieldRating
	d.Min = bounds.Min
	d.Max = bounds.Max
	return nil
}

type ratingBounds struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// FieldTemplate is one field descriptor within a template
type FieldTemplate struct {
	Name      string          `json:"name"`
	FieldType FieldDescriptor `json:"field_type"`
}

// Template is the schema a form is validated against
type Template struct {
	Name   string          `json:"name"`
	Year   int64           `json:"year"`
	Fields []FieldTemplate `json:"fields"`
}

func (t *Template) AltKey() string { return t.Name }
func (t *Template) Kind() DataType { return DataTypeTemplate }

// AddField appends a field descriptor
func (t *Template) AddField(name string, d FieldDescriptor) {
	t.Fields = append(t.Fields, FieldTemplate{Name: name, FieldType: d})
}

// Validate checks a form against the template: every non-Title field must
// be present in the form with a value of the matching kind. Extra form
// fields are permitted. Rating bounds are not enforced here.
func (t *Template) Validate(form *Form) error {
	for _, field := range t.Fields {
		if field.FieldType.Kind == FieldTitle {
			continue
		}
		value, ok := form.GetField(field.Name)
		if !ok {
			return fmt.Errorf("template %q: missing field %q: %w", t.Name, field.Name, ErrValidation)
		}
		if value.Kind != field.FieldType.Kind {
			return fmt.Errorf("template %q: field %q is %s, want %s: %w",
				t.Name, field.Name, value.Kind, field.FieldType.Kind, ErrValidation)
		}
	}
	return nil
}

// FieldValue is a tagged form value matching one of the template's
// non-Title field kinds
type FieldValue struct {
	Kind FieldType
	Bool bool
	Int  int64
	Text string
}

// CheckBoxValue builds a CheckBox value
func CheckBoxValue(v bool) FieldValue { return FieldValue{Kind: FieldCheckBox, Bool: v} }

// RatingValue builds a Rating value
func RatingValue(v int64) FieldValue { return FieldValue{Kind: FieldRating, Int: v} }

// NumberValue builds a Number value
func NumberValue(v int64) FieldValue { return FieldValue{Kind: FieldNumber, Int: v} }

// ShortTextValue builds a ShortText value
func ShortTextValue(v string) FieldValue { return FieldValue{Kind: FieldShortText, Text: v} }

// LongTextValue builds a LongText value
func LongTextValue(v string) FieldValue { return FieldValue{Kind: FieldLongText, Text: v} }

// MarshalJSON encodes the value as a one-key tagged object, e.g.
// {"CheckBox":true} or {"Rating":3}.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case FieldCheckBox:
		return json.Marshal(map[string]bool{string(v.Kind): v.Bool})
	case FieldRating, FieldNumber:
		return json.Marshal(map[string]int64{string(v.Kind): v.Int})
	case FieldShortText, FieldLongText:
		return json.Marshal(map[string]string{string(v.Kind): v.Text})
	}
	return nil, fmt.Errorf("field value has no kind: %w", ErrEncode)
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil || len(tagged) != 1 {
		return fmt.Errorf("malformed field value %s: %w", data, ErrDecode)
	}

	for tag, raw := range tagged {
		switch FieldType(tag) {
		case FieldCheckBox:
			v.Kind = FieldCheckBox
			return json.Unmarshal(raw, &v.Bool)
		case FieldRating, FieldNumber:
			v.Kind = FieldType(tag)
			return json.Unmarshal(raw, &v.Int)
		case FieldShortText, FieldLongText:
			v.Kind = FieldType(tag)
			return json.Unmarshal(raw, &v.Text)
		default:
			return fmt.Errorf("unknown field value tag %q: %w", tag, ErrDecode)
		}
	}
	return fmt.Errorf("empty field value: %w", ErrDecode)
}
