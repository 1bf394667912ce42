package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func NewWhenParser() *when.Parser {
	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)
	return parser
}

// ParseNaturalDate accepts either an ISO date or something like "tomorrow"
// or "next tuesday", resolved against now, and returns the ISO date.
func ParseNaturalDate(parser *when.Parser, text string, now time.Time) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("ParseNaturalDate: date is blank")
	}
	if isoDatePattern.MatchString(text) {
		if _, err := time.Parse("2006-01-02", text); err != nil {
			return "", fmt.Errorf("ParseNaturalDate: %w", err)
		}
		return text, nil
	}

	result, err := parser.Parse(text, now)
	if err != nil {
		return "", fmt.Errorf("ParseNaturalDate: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("ParseNaturalDate: can't understand %q", text)
	}
	return result.Time.In(now.Location()).Format("2006-01-02"), nil
}
