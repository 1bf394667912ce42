package ical

import (
	"strings"
	"unicode/utf8"
)

const maxLineOctets = 75

// Wrap a writer so every content line handed to it is folded at 75
// octets, continuation lines starting with a single space. Folds never
// split a multi-byte rune. Lines are given without their terminator.
func foldWriter(writer func(string) error) func(string) error {
	return func(line string) error {
		if len(line) <= maxLineOctets {
			return writer(line + "\r\n")
		}

		var sb strings.Builder
		limit := maxLineOctets
		for len(line) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			// no rune start in reach, the bytes aren't UTF-8 anyway
			if cut == 0 {
				cut = limit
			}
			sb.WriteString(line[:cut])
			sb.WriteString("\r\n ")
			line = line[cut:]
			// the leading space counts towards the next line
			limit = maxLineOctets - 1
		}
		sb.WriteString(line)
		sb.WriteString("\r\n")
		return writer(sb.String())
	}
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

// escape a TEXT property value
func escapeText(s string) string {
	return textEscaper.Replace(s)
}
