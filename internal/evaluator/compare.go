package evaluator

import (
	"encoding/json"

	"github.com/google/go-cmp/cmp"
)

// Normalize converts a value into its JSON data model (nil, bool, float64,
// string, []any, map[string]any) so that Go ints and interpreter numbers
// compare equal. Values that cannot be encoded are returned unchanged.
func Normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Equal reports deep structural equality of actual and expected. There is no
// type coercion: 0 and "0" differ, as do [] and null.
func Equal(actual, expected any) bool {
	return cmp.Equal(Normalize(actual), Normalize(expected))
}
