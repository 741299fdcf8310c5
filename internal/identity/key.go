// Package identity resolves the same patient across reservation and visit
// exports that do not share a reliable identifier.
package identity

import (
	"fmt"
	"strings"
)

// Field is one identifying attribute that may take part in a key.
type Field string

const (
	FieldNumber    Field = "number"
	FieldName      Field = "name"
	FieldBirthDate Field = "birth_date"
)

// valueEscaper keeps a value from forging a part separator.
var valueEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

// keyOrder is the fixed construction order of key parts.
var keyOrder = []Field{FieldNumber, FieldName, FieldBirthDate}

// ParseField accepts a configured field name.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "number", "patient_number", "no":
		return FieldNumber, nil
	case "name", "patient_name":
		return FieldName, nil
	case "birth_date", "birthdate", "dob":
		return FieldBirthDate, nil
	default:
		return "", fmt.Errorf("unknown identity field %q (use number|name|birth_date)", s)
	}
}

// Fields are the identifying values a record may carry. Names are expected to be
// normalized upstream; Name is used only when NameNormalized is empty.
type Fields struct {
	PatientNumber  string
	NameNormalized string
	Name           string
	BirthDate      string
}

// Builder derives keys from a subset of fields. The zero Builder uses every field.
type Builder struct {
	Fields []Field
}

// NewBuilder builds a Builder from configured field names.
func NewBuilder(names []string) (Builder, error) {
	var b Builder
	for _, n := range names {
		f, err := ParseField(n)
		if err != nil {
			return Builder{}, err
		}
		b.Fields = append(b.Fields, f)
	}
	return b, nil
}

func (b Builder) uses(f Field) bool {
	if len(b.Fields) == 0 {
		return true
	}
	for _, x := range b.Fields {
		if x == f {
			return true
		}
	}
	return false
}

// Key returns the canonical identity for f, or ok=false when no selected field is present.
// Parts always appear in number, name, birth date order whatever order the Builder lists them.
func (b Builder) Key(f Fields) (key string, ok bool) {
	parts := make([]string, 0, len(keyOrder))
	for _, field := range keyOrder {
		if !b.uses(field) {
			continue
		}
		var v string
		switch field {
		case FieldNumber:
			v = f.PatientNumber
		case FieldName:
			v = f.NameNormalized
			if strings.TrimSpace(v) == "" {
				v = f.Name
			}
		case FieldBirthDate:
			v = f.BirthDate
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		parts = append(parts, string(field)+"="+valueEscaper.Replace(v))
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "|"), true
}

// Key derives a key from every available field.
func Key(f Fields) (string, bool) {
	return Builder{}.Key(f)
}
