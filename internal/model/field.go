package model

import "sort"

// FieldValue is one extracted field with its confidence and provenance.
type FieldValue struct {
	Value      Value   `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"` // URL that last set this field
}

// FieldMap holds a product's extracted fields keyed by field name.
// There is no required/optional distinction at this layer, only presence
// and confidence.
type FieldMap map[string]FieldValue

// Keys returns the field names in sorted order for deterministic iteration.
func (m FieldMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow-enough copy safe for merge operations; Value
// internals are treated as immutable once set.
func (m FieldMap) Clone() FieldMap {
	out := make(FieldMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Present reports whether a field exists, is non-empty, and meets the
// minimum confidence threshold.
func (m FieldMap) Present(key string, minConfidence float64) bool {
	fv, ok := m[key]
	if !ok || fv.Value.Empty() {
		return false
	}
	return fv.Confidence >= minConfidence
}

// Text returns the flat text of a field, or "" if absent.
func (m FieldMap) Text(key string) string {
	fv, ok := m[key]
	if !ok {
		return ""
	}
	return fv.Value.Text()
}

// FieldDescriptor describes one field the extraction service should look
// for. The engine passes descriptors through verbatim; all product-type
// vocabulary lives in configuration, never in code.
type FieldDescriptor struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"` // string, number, bool, list, map
	Description string   `yaml:"description" json:"description"`
	Enum        []string `yaml:"enum,omitempty" json:"enum,omitempty"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
}
