package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// MaxDepth bounds validation recursion through nested values and self-references.
const MaxDepth = 64

// Validator is a compiled input schema. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	kind Kind
	root node
}

// Kind reports whether the validator constrains its input.
func (v *Validator) Kind() Kind {
	return v.kind
}

// Permissive is shorthand for Kind() == KindPermissive.
func (v *Validator) Permissive() bool {
	return v.kind == KindPermissive
}

// Validate checks a decoded JSON value.
func (v *Validator) Validate(value any) error {
	return v.root.validate(value, "$", 0)
}

// Parse decodes raw JSON arguments and validates them. Empty input is treated
// as an empty object.
func (v *Validator) Parse(data []byte) (any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, invalid("$", "invalid JSON: %v", err)
	}
	if err := v.Validate(value); err != nil {
		return nil, err
	}
	return value, nil
}

type node interface {
	validate(value any, path string, depth int) error
}

type anyNode struct{}

func (anyNode) validate(any, string, int) error { return nil }

type neverNode struct{}

func (neverNode) validate(_ any, path string, _ int) error {
	return invalid(path, "no value is allowed here")
}

type refNode struct {
	resolve func() node
}

func (n *refNode) validate(value any, path string, depth int) error {
	if depth >= MaxDepth {
		return invalid(path, "maximum schema depth %d exceeded", MaxDepth)
	}
	return n.resolve().validate(value, path, depth+1)
}

type typedNode struct {
	types      []string
	enum       []any
	hasConst   bool
	constValue any
	format     string

	minimum, maximum     *float64
	minLength, maxLength *int
	minItems, maxItems   *int

	properties map[string]node
	required   []string
	additional node
	items      node
}

func (n *typedNode) validate(value any, path string, depth int) error {
	if depth >= MaxDepth {
		return invalid(path, "maximum schema depth %d exceeded", MaxDepth)
	}
	if len(n.types) > 0 && !n.matchesType(value) {
		return invalid(path, "expected %s, got %s", joinTypes(n.types), typeName(value))
	}
	if n.enum != nil && !containsValue(n.enum, value) {
		return invalid(path, "value %s is not one of the allowed values", excerpt(value))
	}
	if n.hasConst && !equalValues(n.constValue, value) {
		return invalid(path, "value must equal %s", excerpt(n.constValue))
	}

	switch {
	case isString(value):
		return n.validateString(value.(string), path)
	case isNumber(value):
		f, _ := toFloat(value)
		return n.validateNumber(f, path)
	}
	if obj, ok := value.(map[string]any); ok {
		return n.validateObject(obj, path, depth)
	}
	if items, ok := asSlice(value); ok {
		return n.validateArray(items, path, depth)
	}
	return nil
}

func (n *typedNode) matchesType(value any) bool {
	for _, t := range n.types {
		switch t {
		case "string":
			if isString(value) {
				return true
			}
		case "number":
			if isNumber(value) {
				return true
			}
		case "integer":
			if f, ok := toFloat(value); ok && isNumber(value) && f == math.Trunc(f) {
				return true
			}
		case "boolean":
			if _, ok := value.(bool); ok {
				return true
			}
		case "object":
			if _, ok := value.(map[string]any); ok {
				return true
			}
		case "array":
			if _, ok := asSlice(value); ok {
				return true
			}
		case "null":
			if value == nil {
				return true
			}
		}
	}
	return false
}

func (n *typedNode) validateString(s, path string) error {
	length := utf8.RuneCountInString(s)
	if n.minLength != nil && length < *n.minLength {
		return invalid(path, "string shorter than %d characters", *n.minLength)
	}
	if n.maxLength != nil && length > *n.maxLength {
		return invalid(path, "string longer than %d characters", *n.maxLength)
	}
	if n.format != "" {
		if err := formats[n.format](s); err != nil {
			return invalid(path, "not a valid %s: %v", n.format, err)
		}
	}
	return nil
}

func (n *typedNode) validateNumber(f float64, path string) error {
	if n.minimum != nil && f < *n.minimum {
		return invalid(path, "%v is less than minimum %v", f, *n.minimum)
	}
	if n.maximum != nil && f > *n.maximum {
		return invalid(path, "%v is greater than maximum %v", f, *n.maximum)
	}
	return nil
}

func (n *typedNode) validateObject(obj map[string]any, path string, depth int) error {
	for _, name := range n.required {
		if _, ok := obj[name]; !ok {
			return invalid(path, "missing required property %q", name)
		}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child, declared := n.properties[name]
		if !declared {
			child = n.additional
		}
		if child == nil {
			continue
		}
		if err := child.validate(obj[name], path+"."+name, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (n *typedNode) validateArray(items []any, path string, depth int) error {
	if n.minItems != nil && len(items) < *n.minItems {
		return invalid(path, "array has fewer than %d items", *n.minItems)
	}
	if n.maxItems != nil && len(items) > *n.maxItems {
		return invalid(path, "array has more than %d items", *n.maxItems)
	}
	if n.items == nil {
		return nil
	}
	for i, item := range items {
		if err := n.items.validate(item, path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
			return err
		}
	}
	return nil
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// asSlice accepts []any as produced by encoding/json and typed slices built in Go code.
func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func typeName(v any) string {
	switch {
	case v == nil:
		return "null"
	case isString(v):
		return "string"
	case isNumber(v):
		return "number"
	}
	if _, ok := v.(bool); ok {
		return "boolean"
	}
	if _, ok := v.(map[string]any); ok {
		return "object"
	}
	if _, ok := asSlice(v); ok {
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

func joinTypes(types []string) string {
	if len(types) == 1 {
		return types[0]
	}
	out := ""
	for i, t := range types {
		if i > 0 {
			out += " or "
		}
		out += t
	}
	return out
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if equalValues(candidate, v) {
			return true
		}
	}
	return false
}

// equalValues compares JSON values, treating numbers by value regardless of Go type.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok && isNumber(a) {
		fb, ok := toFloat(b)
		return ok && isNumber(b) && fa == fb
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}
