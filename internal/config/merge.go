package config

import "strings"

// deepMerge writes every leaf of src into dst, overwriting scalars and
// recursing into nested maps so a partial override layer never wipes
// out sibling keys the lower layer set.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			dstMap, ok := dst[k].(map[string]any)
			if !ok {
				dstMap = map[string]any{}
				dst[k] = dstMap
			}
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}

// flatten turns a nested map into dotted-path -> scalar pairs, e.g.
// {"keycloak":{"realm":"x"}} -> {"keycloak.realm": "x"}.
func flatten(m map[string]any) map[string]any {
	out := map[string]any{}
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(out, path, child)
			continue
		}
		out[path] = v
	}
}

// lookupDotted resolves a dotted path like "keycloak.realm" against a
// nested map.
func lookupDotted(m map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = asMap[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setDotted writes value at a dotted path, creating intermediate maps
// as needed.
func setDotted(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		child, ok := cur[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			cur[p] = child
		}
		cur = child
	}
}

// deleteDotted removes the leaf at path if present.
func deleteDotted(m map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := m
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		child, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = child
	}
}
