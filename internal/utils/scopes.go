package utils

import (
	"slices"
	"strings"
)

// SplitScopes splits a space-separated scope string, dropping empty entries and duplicates.
func SplitScopes(scope string) []string {
	fields := strings.Fields(scope)
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(result, f) {
			result = append(result, f)
		}
	}
	return result
}

// JoinScopes is the inverse of SplitScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
