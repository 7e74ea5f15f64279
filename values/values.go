// Package values handles the sparse values side of a settings panel: deep
// merging explicit values over schema defaults, dotted-path flattening,
// and a JSON document wrapper for hosts that keep values as raw bytes.
package values

import (
	"strings"

	"github.com/dshills/settle/schema"
)

// DeepMerge recursively merges src into dst. Values in src override
// values in dst; maps merge recursively, other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	if src == nil {
		return dst
	}

	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = cloneValue(srcVal)
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = cloneValue(srcVal)
		}
	}

	return dst
}

// Resolve produces the flat resolved value map for a schema: defaults
// from the index, overlaid by explicit values. Explicit may be flat
// (dotted setting keys) or nested; nested branches are descended only
// until a known setting key is reached, so map-valued settings keep
// their whole value. Explicit entries for unknown keys are kept, flat.
func Resolve(index *schema.Index, explicit map[string]any) map[string]any {
	out := index.Defaults()
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	overlay(index, "", explicit, out)
	return out
}

func overlay(index *schema.Index, prefix string, src, out map[string]any) {
	for key, val := range src {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if index.Has(path) {
			out[path] = cloneValue(val)
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			overlay(index, path, nested, out)
			continue
		}
		out[path] = cloneValue(val)
	}
}

// Flatten flattens a nested map into a single-level map with dotted keys.
func Flatten(data map[string]any) map[string]any {
	result := make(map[string]any)
	flattenInto(data, "", result)
	return result
}

func flattenInto(data map[string]any, prefix string, result map[string]any) {
	for key, val := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenInto(nested, fullKey, result)
		} else {
			result[fullKey] = val
		}
	}
}

// Unflatten converts a dotted-key map back into a nested structure.
func Unflatten(data map[string]any) map[string]any {
	result := make(map[string]any)
	for path, val := range data {
		setByPath(result, path, val)
	}
	return result
}

func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for i := 0; i < len(parts)-1; i++ {
		if next, ok := current[parts[i]].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[parts[i]] = next
			current = next
		}
	}
	current[parts[len(parts)-1]] = value
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		return cloneSlice(v)
	default:
		return val
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = cloneValue(v)
	}
	return out
}
