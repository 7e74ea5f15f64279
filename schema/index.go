package schema

import (
	"sort"
	"strings"
)

// Entry is one indexed setting: the definition plus its owning page and
// section. Compound fields carry their parent setting; sub-action entries
// point at the owning action setting and the sub-action itself.
type Entry struct {
	Setting *Setting
	Page    *Page
	Section *Section

	// Parent is the owning compound setting for indexed fields, nil
	// otherwise.
	Parent *Setting

	// Sub is the sub-action this key names, nil for ordinary settings.
	Sub *SubAction
}

// IsAction reports whether writes to this key are invalid because the key
// names an action (or sub-action).
func (e *Entry) IsAction() bool {
	return e.Sub != nil || (e.Setting != nil && e.Setting.Kind == KindAction)
}

// Key returns the indexed key this entry answers to: the sub-action key
// for sub-action entries, the setting key otherwise.
func (e *Entry) Key() string {
	if e.Sub != nil {
		return e.Sub.Key
	}
	return e.Setting.Key
}

// Index is the flat key lookup derived from a schema. It is built once per
// schema identity and read-only afterwards, so lookups need no locking.
type Index struct {
	schema  *Schema
	entries map[string]*Entry
	keys    []string
}

// NewIndex flattens the schema's pages, sections, and subsections into a
// key-addressed lookup. The schema must already be valid; duplicate keys
// are resolved first-wins.
func NewIndex(s *Schema) *Index {
	idx := &Index{
		schema:  s,
		entries: make(map[string]*Entry),
	}

	for i := range s.Pages {
		idx.addPage(&s.Pages[i])
	}

	idx.keys = make([]string, 0, len(idx.entries))
	for key := range idx.entries {
		idx.keys = append(idx.keys, key)
	}
	sort.Strings(idx.keys)

	return idx
}

func (idx *Index) addPage(p *Page) {
	for i := range p.Sections {
		idx.addSection(p, &p.Sections[i])
	}
	for i := range p.Pages {
		idx.addPage(&p.Pages[i])
	}
}

func (idx *Index) addSection(p *Page, sec *Section) {
	for i := range sec.Settings {
		idx.addSetting(p, sec, &sec.Settings[i], nil)
	}
	for i := range sec.Sections {
		idx.addSection(p, &sec.Sections[i])
	}
}

func (idx *Index) addSetting(p *Page, sec *Section, st *Setting, parent *Setting) {
	idx.add(st.Key, &Entry{Setting: st, Page: p, Section: sec, Parent: parent})

	for i := range st.Fields {
		idx.addSetting(p, sec, &st.Fields[i], st)
	}
	for i := range st.Actions {
		sub := &st.Actions[i]
		idx.add(sub.Key, &Entry{Setting: st, Page: p, Section: sec, Sub: sub})
	}
}

func (idx *Index) add(key string, e *Entry) {
	if key == "" {
		return
	}
	if _, exists := idx.entries[key]; exists {
		return
	}
	idx.entries[key] = e
}

// Schema returns the schema this index was built from.
func (idx *Index) Schema() *Schema {
	return idx.schema
}

// Get returns the entry for the given key, or nil if unknown.
func (idx *Index) Get(key string) *Entry {
	return idx.entries[key]
}

// Has checks whether a key is indexed.
func (idx *Index) Has(key string) bool {
	_, ok := idx.entries[key]
	return ok
}

// Keys returns all indexed keys in sorted order.
func (idx *Index) Keys() []string {
	result := make([]string, len(idx.keys))
	copy(result, idx.keys)
	return result
}

// Len returns the number of indexed keys.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Defaults returns a map of all schema-declared default values.
func (idx *Index) Defaults() map[string]any {
	result := make(map[string]any, len(idx.entries))
	for key, e := range idx.entries {
		if e.Sub == nil && e.Setting.Default != nil {
			result[key] = e.Setting.Default
		}
	}
	return result
}

// Search finds settings whose key, title, or description contains the
// query (case-insensitive), sorted by key.
func (idx *Index) Search(query string) []*Entry {
	query = strings.ToLower(query)
	var result []*Entry

	for _, key := range idx.keys {
		e := idx.entries[key]
		if e.Sub != nil {
			continue
		}
		if matchesEntry(key, e.Setting, query) {
			result = append(result, e)
		}
	}

	return result
}

func matchesEntry(key string, st *Setting, query string) bool {
	if strings.Contains(strings.ToLower(key), query) {
		return true
	}
	if strings.Contains(strings.ToLower(st.Title), query) {
		return true
	}
	return strings.Contains(strings.ToLower(st.Description), query)
}
