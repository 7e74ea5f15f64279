package schema

import (
	"encoding/json"
	"fmt"
)

// Parse parses a settings schema from JSON bytes and validates its
// structure. Use FromMap for schemas decoded by the TOML/YAML loaders.
func Parse(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FromMap builds a schema from a generic map, typically produced by the
// TOML or YAML loaders. The map is round-tripped through JSON so the same
// field names and union handling apply.
func FromMap(data map[string]any) (*Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema data: %w", err)
	}
	return Parse(raw)
}

// Validate checks the schema structure: version, key uniqueness across the
// whole tree, kind validity, and per-kind shape requirements. All problems
// are collected.
func (s *Schema) Validate() error {
	errs := &ValidationErrors{}

	if s.Version < 1 {
		errs.Add("", "schema version must be >= 1, got %d", s.Version)
	}
	if len(s.Pages) == 0 {
		errs.Add("", "schema has no pages")
	}

	seen := make(map[string]string) // key -> first path
	for i := range s.Pages {
		validatePage(&s.Pages[i], fmt.Sprintf("pages[%d]", i), seen, errs)
	}

	return errs.AsError()
}

func validatePage(p *Page, path string, seen map[string]string, errs *ValidationErrors) {
	if p.ID == "" {
		errs.Add(path, "page id is required")
	}
	for i := range p.Sections {
		validateSection(&p.Sections[i], fmt.Sprintf("%s.sections[%d]", path, i), seen, errs, true)
	}
	for i := range p.Pages {
		validatePage(&p.Pages[i], fmt.Sprintf("%s.pages[%d]", path, i), seen, errs)
	}
}

func validateSection(sec *Section, path string, seen map[string]string, errs *ValidationErrors, allowSub bool) {
	for i := range sec.Settings {
		validateSetting(&sec.Settings[i], fmt.Sprintf("%s.settings[%d]", path, i), seen, errs)
	}
	for i := range sec.Sections {
		subPath := fmt.Sprintf("%s.sections[%d]", path, i)
		if !allowSub {
			errs.Add(subPath, "subsections may not nest further")
			continue
		}
		validateSection(&sec.Sections[i], subPath, seen, errs, false)
	}
}

func validateSetting(st *Setting, path string, seen map[string]string, errs *ValidationErrors) {
	if st.Key == "" {
		errs.Add(path, "setting key is required")
	} else if prev, dup := seen[st.Key]; dup {
		errs.Add(path, "duplicate setting key %q (first used at %s)", st.Key, prev)
	} else {
		seen[st.Key] = path
	}

	if !st.Kind.Valid() {
		errs.Add(path, "unknown setting type %q", string(st.Kind))
	}

	switch st.Kind {
	case KindCompound:
		if len(st.Fields) == 0 {
			errs.Add(path, "compound setting has no fields")
		}
		for i := range st.Fields {
			f := &st.Fields[i]
			if f.Kind == KindAction || f.Kind == KindRepeatable {
				errs.Add(fmt.Sprintf("%s.fields[%d]", path, i),
					"compound fields may not be %s settings", string(f.Kind))
			}
			validateSetting(f, fmt.Sprintf("%s.fields[%d]", path, i), seen, errs)
		}
	case KindRepeatable:
		if st.ItemKind == "" && len(st.ItemFields) == 0 {
			errs.Add(path, "repeatable setting needs itemKind or itemFields")
		}
		if st.ItemKind != "" && !st.ItemKind.Valid() {
			errs.Add(path, "unknown repeatable item type %q", string(st.ItemKind))
		}
	case KindSelect, KindMultiselect:
		if len(st.Options) == 0 {
			errs.Add(path, "%s setting has no options", string(st.Kind))
		}
	case KindAction:
		if st.ButtonLabel == "" && len(st.Actions) == 0 {
			errs.Add(path, "action setting needs a buttonLabel or sub-actions")
		}
		for i, sub := range st.Actions {
			subPath := fmt.Sprintf("%s.actions[%d]", path, i)
			if sub.Key == "" {
				errs.Add(subPath, "sub-action key is required")
			} else if prev, dup := seen[sub.Key]; dup {
				errs.Add(subPath, "duplicate setting key %q (first used at %s)", sub.Key, prev)
			} else {
				seen[sub.Key] = subPath
			}
		}
	}
}
