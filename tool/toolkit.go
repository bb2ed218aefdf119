package tool

import (
	"errors"
	"fmt"
	"strings"

	errs "github.com/sweetpotato0/toolbridge/errors"
)

// Rejection records a capability that could not be turned into a tool.
type Rejection struct {
	Name string
	Err  error
}

// Toolkit is the ordered set of tools built from one provider connection.
// Tools hold a non-owning reference to that connection.
type Toolkit struct {
	Provider string
	Tools    []*Tool
	Rejected []Rejection
}

// Len returns the number of invocable tools.
func (k *Toolkit) Len() int {
	if k == nil {
		return 0
	}
	return len(k.Tools)
}

// Names returns tool names in catalogue order.
func (k *Toolkit) Names() []string {
	if k == nil {
		return nil
	}
	names := make([]string, 0, len(k.Tools))
	for _, t := range k.Tools {
		names = append(names, t.Name)
	}
	return names
}

// Get returns the first tool with the given name.
func (k *Toolkit) Get(name string) (*Tool, bool) {
	if k == nil {
		return nil, false
	}
	for _, t := range k.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Register adds every tool to r. With a prefix, names become "<prefix>.<name>"
// so toolkits from several providers can share one registry. A name the
// catalogue repeats keeps its first tool, matching Get.
func (k *Toolkit) Register(r *Registry, prefix string) error {
	if k == nil {
		return nil
	}
	for _, t := range k.Tools {
		entry := t
		if prefix != "" {
			clone := *t
			clone.Name = prefix + "." + t.Name
			entry = &clone
		}
		if err := r.Register(entry); err != nil {
			if errors.Is(err, errs.ErrAlreadyExists) {
				continue
			}
			return fmt.Errorf("register toolkit %s: %w", k.Provider, err)
		}
	}
	return nil
}

// RejectionSummary renders rejected capabilities one per line.
func (k *Toolkit) RejectionSummary() string {
	if k == nil || len(k.Rejected) == 0 {
		return ""
	}
	lines := make([]string, 0, len(k.Rejected))
	for _, r := range k.Rejected {
		lines = append(lines, fmt.Sprintf("%s: %v", r.Name, r.Err))
	}
	return strings.Join(lines, "\n")
}
