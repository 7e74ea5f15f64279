// Package schema defines the declarative settings model: pages, sections,
// and typed setting definitions, along with the flat key index, visibility
// conditions, and per-kind value validation rules.
package schema

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the data/control type of a setting. It is the tag of the
// setting union: which other fields of Setting are meaningful depends on it.
type Kind string

// Setting kinds.
const (
	KindBoolean     Kind = "boolean"
	KindText        Kind = "text"
	KindNumber      Kind = "number"
	KindSelect      Kind = "select"
	KindMultiselect Kind = "multiselect"
	KindDate        Kind = "date"
	KindCompound    Kind = "compound"
	KindRepeatable  Kind = "repeatable"
	KindAction      Kind = "action"
	KindCustom      Kind = "custom"
)

// Valid reports whether the kind is one of the known setting kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindBoolean, KindText, KindNumber, KindSelect, KindMultiselect,
		KindDate, KindCompound, KindRepeatable, KindAction, KindCustom:
		return true
	default:
		return false
	}
}

// HasValue reports whether settings of this kind carry a value. Action
// settings are invoked, not written.
func (k Kind) HasValue() bool {
	return k != KindAction
}

// Setting defines a single setting: its identity, presentation metadata,
// and behavior flags. Kind-specific fields are only consulted for the
// matching kind.
type Setting struct {
	// Key is the stable identifier, unique across the whole schema.
	Key string `json:"key"`

	// Kind is the setting type tag.
	Kind Kind `json:"type"`

	// Title is the display label.
	Title string `json:"title"`

	// Description is optional help text.
	Description string `json:"description,omitempty"`

	// Default is the value used when the host supplies none.
	Default any `json:"default,omitempty"`

	// Disabled settings render but reject writes.
	Disabled bool `json:"disabled,omitempty"`

	// ReadOnly settings render their value but reject writes.
	ReadOnly bool `json:"readonly,omitempty"`

	// Dangerous marks destructive settings for emphasized presentation.
	Dangerous bool `json:"dangerous,omitempty"`

	// VisibleWhen conditions are implicitly AND-ed. JSON accepts a single
	// condition object or an array.
	VisibleWhen Conditions `json:"visibleWhen,omitempty"`

	// Confirm, when set, intercepts writes until the user confirms.
	Confirm *ConfirmConfig `json:"confirm,omitempty"`

	// Validation holds the per-kind value rules.
	Validation *Rules `json:"validation,omitempty"`

	// Options for select/multiselect kinds.
	Options []Option `json:"options,omitempty"`

	// ButtonLabel and ActionStyle for action kinds.
	ButtonLabel string `json:"buttonLabel,omitempty"`
	ActionStyle string `json:"actionStyle,omitempty"`

	// Actions lists sub-actions for multi-action settings.
	Actions []SubAction `json:"actions,omitempty"`

	// Fields for compound kinds. Members may not be action or repeatable.
	Fields []Setting `json:"fields,omitempty"`

	// ItemKind or ItemFields describe repeatable items: either a primitive
	// item kind or a structured field list.
	ItemKind   Kind      `json:"itemKind,omitempty"`
	ItemFields []Setting `json:"itemFields,omitempty"`
}

// Option is a selectable choice for select/multiselect settings.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SubAction is one button of a multi-action setting. Its key is used as
// the action key when invoked.
type SubAction struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Style string `json:"style,omitempty"`
}

// ConfirmConfig describes the confirmation dialog shown before a guarded
// write is applied.
type ConfirmConfig struct {
	Title        string `json:"title,omitempty"`
	Message      string `json:"message"`
	ConfirmLabel string `json:"confirmLabel,omitempty"`
	CancelLabel  string `json:"cancelLabel,omitempty"`

	// RequireText, when non-empty, requires the user to type this exact
	// text before the confirmation can be accepted.
	RequireText string `json:"requireText,omitempty"`
}

// Rules holds validation constraints. Which fields apply depends on the
// setting kind; every constraint has an optional message override used in
// place of the default wording.
type Rules struct {
	Required        bool   `json:"required,omitempty"`
	RequiredMessage string `json:"requiredMessage,omitempty"`

	// Numeric bounds and step (number kind).
	Min         *float64 `json:"min,omitempty"`
	MinMessage  string   `json:"minMessage,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	MaxMessage  string   `json:"maxMessage,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	StepMessage string   `json:"stepMessage,omitempty"`

	// String length and pattern (text kind).
	MinLength        *int   `json:"minLength,omitempty"`
	MinLengthMessage string `json:"minLengthMessage,omitempty"`
	MaxLength        *int   `json:"maxLength,omitempty"`
	MaxLengthMessage string `json:"maxLengthMessage,omitempty"`
	Pattern          string `json:"pattern,omitempty"`
	PatternMessage   string `json:"patternMessage,omitempty"`

	// Selection counts (multiselect kind).
	MinSelections        *int   `json:"minSelections,omitempty"`
	MinSelectionsMessage string `json:"minSelectionsMessage,omitempty"`
	MaxSelections        *int   `json:"maxSelections,omitempty"`
	MaxSelectionsMessage string `json:"maxSelectionsMessage,omitempty"`

	// Item counts (repeatable kind).
	MinItems        *int   `json:"minItems,omitempty"`
	MinItemsMessage string `json:"minItemsMessage,omitempty"`
	MaxItems        *int   `json:"maxItems,omitempty"`
	MaxItemsMessage string `json:"maxItemsMessage,omitempty"`

	// Date bounds as ISO date strings (date kind). ISO dates compare
	// correctly lexicographically.
	MinDate        string `json:"minDate,omitempty"`
	MinDateMessage string `json:"minDateMessage,omitempty"`
	MaxDate        string `json:"maxDate,omitempty"`
	MaxDateMessage string `json:"maxDateMessage,omitempty"`

	// Compound cross-field rules, evaluated in declared order.
	Compound []CompoundRule `json:"compound,omitempty"`
}

// CompoundRule requires one key to be set whenever another is. If
// values[When] is truthy and values[Require] is falsy the rule fails with
// Message.
type CompoundRule struct {
	When    string `json:"when"`
	Require string `json:"require"`
	Message string `json:"message,omitempty"`
}

// Schema is the root of a settings description.
type Schema struct {
	Version int    `json:"version"`
	Pages   []Page `json:"pages"`
}

// Page groups sections and may nest child pages.
type Page struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Icon     string    `json:"icon,omitempty"`
	Sections []Section `json:"sections,omitempty"`
	Pages    []Page    `json:"pages,omitempty"`
}

// Section groups settings and may nest one level of subsections.
type Section struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Settings    []Setting `json:"settings,omitempty"`
	Sections    []Section `json:"sections,omitempty"`
}

// Conditions is a list of visibility conditions. JSON accepts either a
// single condition object or an array of them.
type Conditions []Condition

// UnmarshalJSON handles both one condition and an array of conditions.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	var single Condition
	if err := json.Unmarshal(data, &single); err == nil {
		*c = Conditions{single}
		return nil
	}

	var arr []Condition
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("visibleWhen must be a condition or array of conditions: %w", err)
	}
	*c = arr
	return nil
}
