package job

import "fmt"

// Setting is one editable-settings table entry (spec §9 "re-entry / dynamic
// attribute setting": "implement as an explicit string→setter table keyed by
// the declared editable set, with typed parsers per setting" — never
// runtime reflection).
type Setting struct {
	// Get returns the current value's wire representation.
	Get func() string
	// Set parses raw and applies it. Coercion failures are not returned as
	// errors: the ParseFloatSetter/ParseIntSetter helpers report them through
	// their callback and keep the previous value; the raw string is not
	// assigned. Set returns an error only for conditions that must abort the
	// assignment entirely.
	Set func(raw string) error
}

// SettingsTable is the explicit map consulted by the attribute-set protocol.
// `state` is always present (spec §3 "Editable settings").
type SettingsTable map[string]Setting

// Names returns the declared editable setting names, used to populate
// $properties (spec §4.4 init entry action).
func (t SettingsTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}

// ParseFloatSetter builds a Set func that parses raw as a float64 and calls
// assign; on parse failure it calls onCoercionFailure (when non-nil), assigns
// nothing and returns nil. The raw string is not stored anywhere: the
// retained echo handleSet publishes afterwards carries Get()'s unchanged
// value when the setting has a Get hook.
func ParseFloatSetter(assign func(float64), onCoercionFailure func(raw string, err error)) func(string) error {
	return func(raw string) error {
		var v float64
		if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
			if onCoercionFailure != nil {
				onCoercionFailure(raw, err)
			}
			return nil
		}
		assign(v)
		return nil
	}
}

// ParseIntSetter is ParseFloatSetter's integer counterpart, used for `active`
// (spec §12 supplemented feature 3: published as "0"/"1", not "true"/"false").
func ParseIntSetter(assign func(int), onCoercionFailure func(raw string, err error)) func(string) error {
	return func(raw string) error {
		var v int
		if _, err := fmt.Sscanf(raw, "%d", &v); err != nil {
			if onCoercionFailure != nil {
				onCoercionFailure(raw, err)
			}
			return nil
		}
		assign(v)
		return nil
	}
}
