package extract

import (
	"regexp"
	"time"
)

var reDate = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})\b`)

var dateFormats = []string{
	"2006-01-02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
}

// findDate returns the first parseable date in text in ISO 8601 form, or ""
// when there is none.
func findDate(text string) string {
	for _, candidate := range reDate.FindAllString(text, -1) {
		for _, format := range dateFormats {
			if d, err := time.Parse(format, candidate); err == nil {
				return d.Format("2006-01-02")
			}
		}
	}
	return ""
}
