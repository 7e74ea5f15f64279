package schema

import (
	"fmt"
	"math"
	"regexp"
	"sync"
)

// stepEpsilon absorbs floating-point noise in the step multiple-of check
// so values like 4.9999999999 with step 1 pass.
const stepEpsilon = 1e-9

// patternCache holds compiled validation patterns keyed by source.
var patternCache sync.Map // map[string]*regexp.Regexp

// ValidateValue runs the synchronous per-kind validation rules for a
// setting against a candidate value. It returns the error message to
// display, or "" when every rule passes. A setting with no validation
// block always passes. The values map supplies cross-field state for
// compound rules.
func ValidateValue(st *Setting, value any, values map[string]any) string {
	if st == nil || st.Validation == nil {
		return ""
	}

	r := st.Validation
	switch st.Kind {
	case KindText:
		return validateText(r, value)
	case KindNumber:
		return validateNumber(r, value)
	case KindSelect:
		return validateSelect(r, value)
	case KindMultiselect:
		return validateMultiselect(r, value)
	case KindDate:
		return validateDate(r, value)
	case KindRepeatable:
		return validateRepeatable(r, value)
	case KindCompound:
		return validateCompound(r, values)
	default:
		return ""
	}
}

func validateText(r *Rules, value any) string {
	str := toString(value)

	if str == "" {
		if r.Required {
			return message(r.RequiredMessage, "This field is required")
		}
		return ""
	}

	if r.MinLength != nil && len([]rune(str)) < *r.MinLength {
		return message(r.MinLengthMessage,
			fmt.Sprintf("Must be at least %d characters", *r.MinLength))
	}
	if r.MaxLength != nil && len([]rune(str)) > *r.MaxLength {
		return message(r.MaxLengthMessage,
			fmt.Sprintf("Must be at most %d characters", *r.MaxLength))
	}

	if r.Pattern != "" {
		re, err := compilePattern(r.Pattern)
		if err != nil {
			// A broken pattern in the schema must not take the field down.
			return "Invalid validation pattern"
		}
		if !re.MatchString(str) {
			return message(r.PatternMessage, "Invalid format")
		}
	}

	return ""
}

func validateNumber(r *Rules, value any) string {
	// Empty means no value entered; zero is a value.
	if isEmpty(value) {
		if r.Required {
			return message(r.RequiredMessage, "This field is required")
		}
		return ""
	}

	f, ok := toFloat64(value)
	if !ok || math.IsNaN(f) {
		return "Must be a number"
	}

	if r.Min != nil && f < *r.Min {
		return message(r.MinMessage, fmt.Sprintf("Must be at least %v", *r.Min))
	}
	if r.Max != nil && f > *r.Max {
		return message(r.MaxMessage, fmt.Sprintf("Must be at most %v", *r.Max))
	}

	if r.Step != nil && *r.Step != 0 {
		scaled := f / *r.Step
		if math.Abs(scaled-math.Round(scaled)) > stepEpsilon {
			if *r.Step == 1 {
				return message(r.StepMessage, "Must be a whole number")
			}
			return message(r.StepMessage, fmt.Sprintf("Must be a multiple of %v", *r.Step))
		}
	}

	return ""
}

func validateSelect(r *Rules, value any) string {
	if r.Required && toString(value) == "" {
		return message(r.RequiredMessage, "This field is required")
	}
	return ""
}

func validateMultiselect(r *Rules, value any) string {
	arr := toSlice(value)

	if len(arr) == 0 {
		if r.Required {
			return message(r.RequiredMessage, "Select at least one option")
		}
		return ""
	}

	if r.MinSelections != nil && len(arr) < *r.MinSelections {
		return message(r.MinSelectionsMessage,
			fmt.Sprintf("Select at least %d options", *r.MinSelections))
	}
	if r.MaxSelections != nil && len(arr) > *r.MaxSelections {
		return message(r.MaxSelectionsMessage,
			fmt.Sprintf("Select at most %d options", *r.MaxSelections))
	}

	return ""
}

func validateDate(r *Rules, value any) string {
	str := toString(value)

	if str == "" {
		if r.Required {
			return message(r.RequiredMessage, "This field is required")
		}
		return ""
	}

	// ISO date strings order correctly under lexicographic comparison.
	if r.MinDate != "" && str < r.MinDate {
		return message(r.MinDateMessage,
			fmt.Sprintf("Date must be on or after %s", r.MinDate))
	}
	if r.MaxDate != "" && str > r.MaxDate {
		return message(r.MaxDateMessage,
			fmt.Sprintf("Date must be on or before %s", r.MaxDate))
	}

	return ""
}

func validateRepeatable(r *Rules, value any) string {
	arr := toSlice(value)

	if r.MinItems != nil && len(arr) < *r.MinItems {
		return message(r.MinItemsMessage,
			fmt.Sprintf("Must have at least %d items", *r.MinItems))
	}
	if r.MaxItems != nil && len(arr) > *r.MaxItems {
		return message(r.MaxItemsMessage,
			fmt.Sprintf("Must have at most %d items", *r.MaxItems))
	}

	return ""
}

func validateCompound(r *Rules, values map[string]any) string {
	// Rules run in declared order; the first failure wins.
	for _, rule := range r.Compound {
		if Truthy(values[rule.When]) && !Truthy(values[rule.Require]) {
			if rule.Message != "" {
				return rule.Message
			}
			return fmt.Sprintf("%s is required when %s is set", rule.Require, rule.When)
		}
	}
	return ""
}

func message(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patternCache.Store(pattern, re)
	return re, nil
}
