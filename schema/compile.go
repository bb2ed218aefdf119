// Package schema compiles tool input schemas into strict runtime validators.
//
// Only a subset of JSON Schema is understood. Anything outside it fails
// compilation with an UnsupportedSchemaError instead of degrading into a
// validator that accepts everything. Intentionally unconstrained schemas
// (nil, {}, true) compile to a validator tagged KindPermissive.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Kind tags how a Validator constrains its input.
type Kind int

const (
	// KindConstrained validators were compiled from a schema with at least one constraint.
	KindConstrained Kind = iota
	// KindPermissive validators accept every value because the schema declared no constraints.
	KindPermissive
)

func (k Kind) String() string {
	if k == KindPermissive {
		return "permissive"
	}
	return "constrained"
}

// selfRef is the only $ref target the compiler resolves.
const selfRef = "#"

var (
	annotationKeywords = map[string]bool{
		"title":       true,
		"description": true,
		"$schema":     true,
		"$comment":    true,
		"examples":    true,
	}

	constraintKeywords = map[string]bool{
		"type":                 true,
		"properties":           true,
		"required":             true,
		"additionalProperties": true,
		"items":                true,
		"enum":                 true,
		"const":                true,
		"minimum":              true,
		"maximum":              true,
		"minLength":            true,
		"maxLength":            true,
		"minItems":             true,
		"maxItems":             true,
		"format":               true,
		"$ref":                 true,
	}

	knownTypes = map[string]bool{
		"string":  true,
		"number":  true,
		"integer": true,
		"boolean": true,
		"object":  true,
		"array":   true,
		"null":    true,
	}
)

// Compile converts a declared input schema into a Validator.
//
// raw may be nil, a bool, a map[string]any, raw JSON bytes, or any value that
// marshals to a JSON object or boolean.
func Compile(raw any) (*Validator, error) {
	doc, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	switch d := doc.(type) {
	case nil:
		return permissive(), nil
	case bool:
		if d {
			return permissive(), nil
		}
		return &Validator{kind: KindConstrained, root: neverNode{}}, nil
	case map[string]any:
		if annotationsOnly(d) {
			return permissive(), nil
		}
		c := &compiler{}
		root, err := c.compile(d, selfRef)
		if err != nil {
			return nil, err
		}
		// A root that only refers to itself adds no constraint.
		if _, ok := root.(*refNode); ok {
			return permissive(), nil
		}
		c.root = root
		return &Validator{kind: KindConstrained, root: root}, nil
	default:
		return nil, unsupported(doc, selfRef, "", "schema must be an object or a boolean")
	}
}

func permissive() *Validator {
	return &Validator{kind: KindPermissive, root: anyNode{}}
}

func normalize(raw any) (any, error) {
	switch v := raw.(type) {
	case nil, bool, map[string]any:
		return v, nil
	case json.RawMessage:
		return decodeSchema(v)
	case []byte:
		return decodeSchema(v)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, unsupported(fmt.Sprintf("%T", raw), selfRef, "", "schema is not JSON-encodable")
	}
	return decodeSchema(data)
}

func decodeSchema(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, unsupported(string(data), selfRef, "", "schema is not valid JSON")
	}
	return doc, nil
}

func annotationsOnly(m map[string]any) bool {
	for key := range m {
		if !annotationKeywords[key] {
			return false
		}
	}
	return true
}

type compiler struct {
	root node
}

// rootNode is only called from lazily resolved references, after Compile has
// assigned the root.
func (c *compiler) rootNode() node {
	return c.root
}

func (c *compiler) compileChild(v any, path string) (node, error) {
	switch s := v.(type) {
	case bool:
		if s {
			return anyNode{}, nil
		}
		return neverNode{}, nil
	case map[string]any:
		if annotationsOnly(s) {
			return anyNode{}, nil
		}
		return c.compile(s, path)
	default:
		return nil, unsupported(v, path, "", "subschema must be an object or a boolean")
	}
}

func (c *compiler) compile(m map[string]any, path string) (node, error) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if annotationKeywords[key] || constraintKeywords[key] {
			continue
		}
		if key == "default" {
			return nil, unsupported(m, path, key, "static default values are not supported")
		}
		return nil, unsupported(m, path, key, "keyword is outside the supported subset")
	}

	if ref, ok := m["$ref"]; ok {
		return c.compileRef(m, path, ref)
	}

	n := &typedNode{}
	if raw, ok := m["type"]; ok {
		types, err := parseTypes(m, path, raw)
		if err != nil {
			return nil, err
		}
		n.types = types
	}
	if raw, ok := m["enum"]; ok {
		values, ok := raw.([]any)
		if !ok || len(values) == 0 {
			return nil, unsupported(m, path, "enum", "enum must be a non-empty array")
		}
		n.enum = values
	}
	if raw, ok := m["const"]; ok {
		n.hasConst = true
		n.constValue = raw
	}
	if raw, ok := m["format"]; ok {
		name, _ := raw.(string)
		if formats[name] == nil {
			return nil, unsupported(m, path, "format", fmt.Sprintf("format %q is not supported", name))
		}
		n.format = name
	}

	var err error
	if n.minimum, err = numberKeyword(m, path, "minimum"); err != nil {
		return nil, err
	}
	if n.maximum, err = numberKeyword(m, path, "maximum"); err != nil {
		return nil, err
	}
	if n.minLength, err = countKeyword(m, path, "minLength"); err != nil {
		return nil, err
	}
	if n.maxLength, err = countKeyword(m, path, "maxLength"); err != nil {
		return nil, err
	}
	if n.minItems, err = countKeyword(m, path, "minItems"); err != nil {
		return nil, err
	}
	if n.maxItems, err = countKeyword(m, path, "maxItems"); err != nil {
		return nil, err
	}

	if raw, ok := m["properties"]; ok {
		props, ok := raw.(map[string]any)
		if !ok {
			return nil, unsupported(m, path, "properties", "properties must be an object")
		}
		n.properties = make(map[string]node, len(props))
		for name, sub := range props {
			child, err := c.compileChild(sub, path+"/properties/"+name)
			if err != nil {
				return nil, err
			}
			n.properties[name] = child
		}
	}
	if raw, ok := m["required"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, unsupported(m, path, "required", "required must be an array of strings")
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, unsupported(m, path, "required", "required must be an array of strings")
			}
			n.required = append(n.required, name)
		}
	}
	if raw, ok := m["additionalProperties"]; ok {
		child, err := c.compileChild(raw, path+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		n.additional = child
	}
	if raw, ok := m["items"]; ok {
		if _, isTuple := raw.([]any); isTuple {
			return nil, unsupported(m, path, "items", "tuple items are not supported")
		}
		child, err := c.compileChild(raw, path+"/items")
		if err != nil {
			return nil, err
		}
		n.items = child
	}

	return n, nil
}

func (c *compiler) compileRef(m map[string]any, path string, ref any) (node, error) {
	target, _ := ref.(string)
	if target != selfRef {
		return nil, unsupported(m, path, "$ref", fmt.Sprintf("only the root self-reference %q is supported", selfRef))
	}
	for key := range m {
		if key != "$ref" && !annotationKeywords[key] {
			return nil, unsupported(m, path, key, "$ref cannot be combined with other constraints")
		}
	}
	return &refNode{resolve: sync.OnceValue(c.rootNode)}, nil
}

func parseTypes(m map[string]any, path string, raw any) ([]string, error) {
	var names []string
	switch t := raw.(type) {
	case string:
		names = []string{t}
	case []any:
		for _, item := range t {
			name, ok := item.(string)
			if !ok {
				return nil, unsupported(m, path, "type", "type list must contain strings")
			}
			names = append(names, name)
		}
	default:
		return nil, unsupported(m, path, "type", "type must be a string or an array of strings")
	}
	if len(names) == 0 {
		return nil, unsupported(m, path, "type", "type list is empty")
	}
	for _, name := range names {
		if !knownTypes[name] {
			return nil, unsupported(m, path, "type", fmt.Sprintf("unknown type %q", name))
		}
	}
	return names, nil
}

func numberKeyword(m map[string]any, path, key string) (*float64, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	f, ok := toFloat(raw)
	if !ok {
		return nil, unsupported(m, path, key, key+" must be a number")
	}
	return &f, nil
}

func countKeyword(m map[string]any, path, key string) (*int, error) {
	raw, ok := m[key]
	if !ok {
		return nil, nil
	}
	f, ok := toFloat(raw)
	if !ok || f < 0 || f != math.Trunc(f) {
		return nil, unsupported(m, path, key, key+" must be a non-negative integer")
	}
	n := int(f)
	return &n, nil
}
