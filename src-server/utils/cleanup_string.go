package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// strips and collapses spaces, uppercase first letter, remove trailing period
func CleanupString(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	words[0] = cases.Title(language.English, cases.NoLower).String(words[0])
	return strings.TrimSuffix(strings.Join(words, " "), ".")
}
