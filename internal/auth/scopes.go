package auth

import "strings"

// DefaultScope is requested when a login names no scope.
// Yandex OAuth also accepts an empty scope, meaning every scope of the application.
const DefaultScope = "direct:api"

// ParseScopes splits a space- or comma-separated scope list.
func ParseScopes(scope string) []string {
	return strings.FieldsFunc(scope, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
