package pricing

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// FormData is the nested answer document produced by the quote form: one object per service
// area, flat contact fields and the list of selected services under "services".
type FormData map[string]any

// Contact fields read from the top level of FormData.
const (
	FieldServices   = "services"
	FieldFirstName  = "firstName"
	FieldLastName   = "lastName"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldCompany    = "company"
	FieldEntityType = "businessTax.entityType"
	FieldFilings    = "additionalServices.specializedFilings"
)

// Contact is the contact block of a submission.
type Contact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Answers is the flattened, read-only view of a FormData. Values are one of string, float64,
// bool or []string; nested objects are addressed by dotted paths.
type Answers struct {
	values   map[string]any
	services []string
	selected map[string]bool
}

// NewAnswers flattens form once so every later lookup is a single map read.
func NewAnswers(form FormData) Answers {
	a := Answers{
		values:   make(map[string]any),
		selected: make(map[string]bool),
	}
	flatten("", map[string]any(form), a.values)

	for _, s := range toStrings(form[FieldServices]) {
		s = strings.TrimSpace(s)
		if s == "" || a.selected[s] {
			continue
		}
		a.selected[s] = true
		a.services = append(a.services, s)
	}
	return a
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		if nested, ok := v.(FormData); ok {
			flatten(key, nested, out)
			continue
		}
		if nv, ok := normalizeValue(v); ok {
			out[key] = nv
		}
	}
}

// normalizeValue reduces decoded JSON/YAML values to the four supported shapes.
func normalizeValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return t, true
	case bool:
		return t, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return t.String(), true
	case []string:
		return append([]string(nil), t...), true
	case []any:
		return toStrings(t), true
	}
	return nil, false
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

// Get returns the value stored at path.
func (a Answers) Get(path string) (any, bool) {
	v, ok := a.values[strings.TrimSpace(path)]
	return v, ok
}

// Lookup resolves path as written, then relative to section.
func (a Answers) Lookup(path, section string) (any, bool) {
	if v, ok := a.Get(path); ok {
		return v, true
	}
	if section == "" || strings.HasPrefix(path, section+".") {
		return nil, false
	}
	return a.Get(section + "." + strings.TrimSpace(path))
}

// String returns the value at path rendered as a string.
func (a Answers) String(path string) string {
	v, _ := a.Get(path)
	return valueString(v)
}

// Strings returns the value at path as a list.
func (a Answers) Strings(path string) []string {
	v, _ := a.Get(path)
	switch t := v.(type) {
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}

// Number returns the numeric value at path; ok is false when the value is missing or not numeric.
func (a Answers) Number(path string) (float64, bool) {
	v, found := a.Get(path)
	if !found {
		return 0, false
	}
	return toNumber(v)
}

// Bool interprets the value at path as a yes/no answer.
func (a Answers) Bool(path string) bool {
	v, _ := a.Get(path)
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "true", "y", "1", "on":
			return true
		}
	case []string:
		return len(t) > 0
	}
	return false
}

// Selected reports whether the user picked serviceID.
func (a Answers) Selected(serviceID string) bool {
	return a.selected[serviceID]
}

// Services returns the selected services in the order they were submitted.
func (a Answers) Services() []string {
	return append([]string(nil), a.services...)
}

// Paths returns every flattened path in sorted order.
func (a Answers) Paths() []string {
	paths := make([]string, 0, len(a.values))
	for k := range a.values {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths
}

// Contact extracts the contact block.
func (a Answers) Contact() Contact {
	return Contact{
		FirstName: a.String(FieldFirstName),
		LastName:  a.String(FieldLastName),
		Email:     a.String(FieldEmail),
		Phone:     a.String(FieldPhone),
		Company:   a.String(FieldCompany),
	}
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(t, ", ")
	}
	s, _ := scalarString(v)
	return s
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	}
	return false
}
