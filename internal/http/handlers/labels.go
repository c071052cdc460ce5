package handlers

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/domain"
)

var titleCaser = cases.Title(language.English)

// styleLabel renders a style identifier for display ("lifestyle" ->
// "Lifestyle").
func styleLabel(s domain.Style) string {
	if s == "" {
		return ""
	}
	return titleCaser.String(string(s))
}
