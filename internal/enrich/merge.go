package enrich

import (
	"github.com/cellarworks/enrich-cli/internal/model"
)

// MergeField reconciles one field's existing and incoming values.
// An empty existing value accepts incoming outright. Two lists union
// with case-insensitive de-duplication regardless of confidence. Two
// maps merge recursively. Scalar conflicts go to the strictly more
// confident value; ties keep existing.
func MergeField(existing, incoming model.FieldValue) model.FieldValue {
	if existing.Value.Empty() {
		return incoming
	}
	if incoming.Value.Empty() {
		return existing
	}
	if existing.Value.Kind == model.KindList && incoming.Value.Kind == model.KindList {
		merged := incoming
		merged.Value = unionLists(existing.Value, incoming.Value)
		return merged
	}
	if existing.Value.Kind == model.KindMap && incoming.Value.Kind == model.KindMap {
		merged := incoming
		merged.Value = mergeMaps(existing.Value, incoming.Value)
		return merged
	}
	if incoming.Confidence > existing.Confidence {
		return incoming
	}
	return existing
}

// MergeFields applies MergeField across a whole incoming field map and
// returns the updated map. The input maps are not mutated.
func MergeFields(existing model.FieldMap, incoming model.FieldMap) model.FieldMap {
	out := existing.Clone()
	for name, inc := range incoming {
		if cur, ok := out[name]; ok {
			out[name] = MergeField(cur, inc)
		} else {
			out[name] = inc
		}
	}
	return out
}

func unionLists(a, b model.Value) model.Value {
	out := make([]model.Value, 0, len(a.List)+len(b.List))
	out = append(out, a.List...)
	for _, item := range b.List {
		dup := false
		for _, have := range a.List {
			if have.EqualFold(item) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, item)
		}
	}
	return model.ListOf(out...)
}

func mergeMaps(a, b model.Value) model.Value {
	out := make(map[string]model.Value, len(a.Map)+len(b.Map))
	for k, v := range a.Map {
		out[k] = v
	}
	for k, v := range b.Map {
		if have, ok := out[k]; ok {
			if have.Kind == model.KindMap && v.Kind == model.KindMap {
				out[k] = mergeMaps(have, v)
				continue
			}
			if have.Kind == model.KindList && v.Kind == model.KindList {
				out[k] = unionLists(have, v)
				continue
			}
		}
		out[k] = v
	}
	return model.MapOf(out)
}
