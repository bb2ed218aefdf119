package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxExcerpt bounds the schema text embedded in an UnsupportedSchemaError.
const maxExcerpt = 120

// UnsupportedSchemaError is returned by Compile when a schema uses a construct
// outside the supported subset. It is the only compilation error class.
type UnsupportedSchemaError struct {
	// Path is the JSON pointer-ish location of the offending node, rooted at "#".
	Path string
	// Keyword is the schema keyword that could not be compiled.
	Keyword string
	// Type is the declared type of the offending node, if any.
	Type string
	// Excerpt is a bounded rendering of the offending node, set when Type is empty.
	Excerpt string
	// Reason is a short human readable explanation.
	Reason string
}

func (e *UnsupportedSchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema: unsupported")
	if e.Keyword != "" {
		fmt.Fprintf(&b, " keyword %q", e.Keyword)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, " in schema of type %q", e.Type)
	} else if e.Excerpt != "" {
		fmt.Fprintf(&b, " in schema %s", e.Excerpt)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func unsupported(node any, path, keyword, reason string) *UnsupportedSchemaError {
	err := &UnsupportedSchemaError{Path: path, Keyword: keyword, Reason: reason}
	if m, ok := node.(map[string]any); ok {
		err.Type = declaredType(m["type"])
	}
	if err.Type == "" {
		err.Excerpt = excerpt(node)
	}
	return err
}

func declaredType(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		names := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return strings.Join(names, "|")
	}
	return ""
}

func excerpt(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", v))
	}
	if len(data) <= maxExcerpt {
		return string(data)
	}
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + "..."
}

// ValidationError reports a value rejected by a compiled Validator.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func invalid(path, format string, args ...any) *ValidationError {
	return &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
