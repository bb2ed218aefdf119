package catalog

// Mode selects which part of a fetched catalogue is exposed.
type Mode string

const (
	// ModeAll exposes every capability.
	ModeAll Mode = "all"
	// ModeSelected exposes only the capabilities named in Include.
	ModeSelected Mode = "selected"
	// ModeExcept exposes every capability not named in Exclude.
	ModeExcept Mode = "except"
)

// Selection is the tool-selection setting of one provider.
type Selection struct {
	Mode    Mode     `yaml:"mode" json:"mode"`
	Include []string `yaml:"include" json:"include,omitempty"`
	Exclude []string `yaml:"exclude" json:"exclude,omitempty"`
}

// Select filters caps according to sel. An empty include list under
// ModeSelected and any unknown mode return the full catalogue. Order is kept.
func Select(sel Selection, caps []Capability) []Capability {
	switch sel.Mode {
	case ModeSelected:
		if len(sel.Include) == 0 {
			return caps
		}
		return filter(caps, toSet(sel.Include), true)
	case ModeExcept:
		if len(sel.Exclude) == 0 {
			return caps
		}
		return filter(caps, toSet(sel.Exclude), false)
	default:
		return caps
	}
}

func filter(caps []Capability, names map[string]struct{}, keepNamed bool) []Capability {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		_, named := names[c.Name]
		if named == keepNamed {
			out = append(out, c)
		}
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
