package content

import "sort"

// ruleKind selects the structural rule set applied to a type's body.
// Unknown types fall back to ruleObject (body must be a JSON object).
type ruleKind int

const (
	ruleObject ruleKind = iota
	ruleCarousel
	ruleContact
	ruleHistory
	ruleServices
)

// typeEntry describes one registered content type: the document file it maps
// to and the validation rules its body must satisfy.
type typeEntry struct {
	FileName string
	Rules    ruleKind
}

// Registry is the single source of the contentType -> {fileName, rules}
// mapping, consumed by the store, the service, and the HTTP layer. The old
// site repeated this lookup table in several places; here it exists once.
type Registry struct {
	entries map[string]typeEntry
}

// DefaultRegistry returns the fixed set of editable content types for the site.
func DefaultRegistry() *Registry {
	return &Registry{entries: map[string]typeEntry{
		"homepage-carousel": {FileName: "homepage-carousel.json", Rules: ruleCarousel},
		"homepage":          {FileName: "homepage.json", Rules: ruleObject},
		"contact":           {FileName: "contact.json", Rules: ruleContact},
		"history":           {FileName: "history.json", Rules: ruleHistory},
		"services":          {FileName: "services.json", Rules: ruleServices},
		"navigation":        {FileName: "navigation.json", Rules: ruleObject},
		"footer":            {FileName: "footer.json", Rules: ruleObject},
	}}
}

// Lookup returns the entry for a type and whether it is registered.
func (r *Registry) Lookup(typ string) (typeEntry, bool) {
	e, ok := r.entries[typ]
	return e, ok
}

// FileName returns the document file name for a type, or "" if unregistered.
func (r *Registry) FileName(typ string) string {
	return r.entries[typ].FileName
}

// TypeForFile reverses the mapping: document file name back to content type.
func (r *Registry) TypeForFile(name string) (string, bool) {
	for typ, e := range r.entries {
		if e.FileName == name {
			return typ, true
		}
	}
	return "", false
}

// Types returns all registered type names in stable order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.entries))
	for typ := range r.entries {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
