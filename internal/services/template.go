package services

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// RenderTemplate replaces every {{ key }} token whose key is present in vars.
// Whitespace inside the braces is ignored; unknown keys are left untouched.
func RenderTemplate(template string, vars map[string]string) string {
	if template == "" || len(vars) == 0 || !strings.Contains(template, "{{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		match := placeholderPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return token
		}
		if value, ok := vars[match[1]]; ok {
			return value
		}
		return token
	})
}
