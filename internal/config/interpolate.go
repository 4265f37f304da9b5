package config

import (
	"fmt"
	"strings"
)

// maxInterpolationDepth bounds recursive ${a.b} resolution so a cyclic
// reference (a -> ${b}, b -> ${a}) stops instead of hanging: past
// this depth the reference is left as its literal "${...}" text.
const maxInterpolationDepth = 16

// interpolateAll resolves every "${path:-default}" reference inside m
// in place, walking nested maps and string leaves.
func interpolateAll(m map[string]any) {
	resolveMap(m, m, map[string]int{})
}

func resolveMap(node, root map[string]any, stack map[string]int) {
	for k, v := range node {
		switch val := v.(type) {
		case string:
			node[k] = resolveString(val, root, stack)
		case map[string]any:
			resolveMap(val, root, stack)
		}
	}
}

// resolveString expands every ${path} or ${path:-default} reference in
// s. A path that resolves to another string is itself expanded
// (bounded by maxInterpolationDepth), so chained references work; a
// path with no value and no default is left as the literal "${path}"
// token rather than silently becoming an empty string, matching the
// interpolation contract in spec §4.1.
func resolveString(s string, root map[string]any, stack map[string]int) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		out.WriteString(s[i:start])
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			out.WriteString(s[start:])
			break
		}
		end += start
		expr := s[start+2 : end]
		out.WriteString(resolveExpr(expr, root, stack))
		i = end + 1
	}
	return out.String()
}

func resolveExpr(expr string, root map[string]any, stack map[string]int) string {
	path := expr
	def := ""
	hasDef := false
	if idx := strings.Index(expr, ":-"); idx >= 0 {
		path = expr[:idx]
		def = expr[idx+2:]
		hasDef = true
	}

	if stack[path] >= maxInterpolationDepth {
		return fmt.Sprintf("${%s}", expr)
	}
	stack[path]++
	defer func() { stack[path]-- }()

	v, ok := lookupDotted(root, path)
	if !ok {
		if hasDef {
			return resolveString(def, root, stack)
		}
		return fmt.Sprintf("${%s}", expr)
	}
	switch val := v.(type) {
	case string:
		return resolveString(val, root, stack)
	default:
		return fmt.Sprintf("%v", val)
	}
}
