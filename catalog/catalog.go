// Package catalog discovers the callable capabilities of a remote tool provider.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Capability describes one remotely invocable tool.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// Page is a single response of the remote catalogue endpoint.
//
// Tools holds whatever the remote side returned for the page. ListAll accepts
// the SDK's typed tool slices as well as loosely decoded JSON.
type Page struct {
	Tools      any
	NextCursor string
}

// PageSource fetches one page of the remote catalogue. An empty cursor requests
// the first page.
type PageSource interface {
	ListToolsPage(ctx context.Context, cursor string) (*Page, error)
}

// ListError reports a failure while paging through a catalogue. No partial
// catalogue is returned alongside it.
type ListError struct {
	Page   int
	Cursor string
	Err    error
}

func (e *ListError) Error() string {
	if e.Cursor == "" {
		return fmt.Sprintf("catalog: list page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("catalog: list page %d (cursor %q): %v", e.Page, e.Cursor, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// ListAll follows the pagination cursor until the remote side stops returning
// one and concatenates the pages in order. Duplicate names are passed through.
func ListAll(ctx context.Context, src PageSource) ([]Capability, error) {
	if src == nil {
		return nil, &ListError{Err: fmt.Errorf("page source is nil")}
	}

	var (
		cursor string
		caps   []Capability
		seen   = make(map[string]bool)
	)
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, &ListError{Page: page, Cursor: cursor, Err: err}
		}
		res, err := src.ListToolsPage(ctx, cursor)
		if err != nil {
			return nil, &ListError{Page: page, Cursor: cursor, Err: err}
		}
		if res == nil {
			break
		}
		caps = append(caps, decodeTools(res.Tools)...)
		if res.NextCursor == "" {
			break
		}
		if seen[res.NextCursor] {
			return nil, &ListError{Page: page, Cursor: res.NextCursor, Err: fmt.Errorf("cursor repeated")}
		}
		seen[res.NextCursor] = true
		cursor = res.NextCursor
	}

	if caps == nil {
		caps = []Capability{}
	}
	return caps, nil
}

// decodeTools turns a page's tool field into capabilities. A missing or
// mistyped field yields an empty page.
func decodeTools(raw any) []Capability {
	switch tools := raw.(type) {
	case nil:
		return nil
	case []*sdkmcp.Tool:
		out := make([]Capability, 0, len(tools))
		for _, t := range tools {
			if t == nil || t.Name == "" {
				continue
			}
			out = append(out, fromSDK(t))
		}
		return out
	case []sdkmcp.Tool:
		out := make([]Capability, 0, len(tools))
		for i := range tools {
			if tools[i].Name == "" {
				continue
			}
			out = append(out, fromSDK(&tools[i]))
		}
		return out
	case []Capability:
		out := make([]Capability, 0, len(tools))
		for _, c := range tools {
			if c.Name != "" {
				out = append(out, c)
			}
		}
		return out
	case []map[string]any:
		out := make([]Capability, 0, len(tools))
		for _, m := range tools {
			if c, ok := fromMap(m); ok {
				out = append(out, c)
			}
		}
		return out
	case []any:
		out := make([]Capability, 0, len(tools))
		for _, item := range tools {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if c, ok := fromMap(m); ok {
				out = append(out, c)
			}
		}
		return out
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(tools, &decoded); err != nil {
			return nil
		}
		return decodeTools(decoded)
	default:
		return nil
	}
}

func fromSDK(t *sdkmcp.Tool) Capability {
	description := t.Description
	if description == "" && t.Annotations != nil {
		description = t.Annotations.Title
	}
	return Capability{
		Name:        t.Name,
		Description: description,
		InputSchema: t.InputSchema,
	}
}

func fromMap(m map[string]any) (Capability, bool) {
	name, _ := m["name"].(string)
	if name == "" {
		return Capability{}, false
	}
	description, _ := m["description"].(string)
	return Capability{
		Name:        name,
		Description: description,
		InputSchema: m["inputSchema"],
	}, true
}
