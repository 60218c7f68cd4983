package utils

import "fmt"

// ToStringSlice returns the string form of every scalar element in v.
// Accepts []any (decoded JSON) and []string; anything else yields an empty slice.
func ToStringSlice(v any) []string {
	stringSlice := make([]string, 0)
	switch slice := v.(type) {
	case []string:
		return append(stringSlice, slice...)
	case []any:
		for _, item := range slice {
			switch s := item.(type) {
			case string:
				stringSlice = append(stringSlice, s)
			case nil, map[string]any, []any:
				// not a scalar
			default:
				stringSlice = append(stringSlice, fmt.Sprint(s))
			}
		}
	}
	return stringSlice
}
