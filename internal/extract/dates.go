package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericDate = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	isoDate     = regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`)
	namedDate   = regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2},? \d{4}\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDate parses a value matched by the date patterns into a UTC date.
// Numeric dates are read as M/D/Y unless the first field exceeds 12, in which
// case they are D/M/Y. Two-digit years are in the 2000s.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)

	switch {
	case isoDate.MatchString(value) && len(isoDate.FindString(value)) == len(value):
		f := splitNumeric(value)
		return makeDate(f[0], f[1], f[2])

	case numericDate.MatchString(value) && len(numericDate.FindString(value)) == len(value):
		f := splitNumeric(value)
		year := f[2]
		if year < 100 {
			year += 2000
		}
		if f[0] > 12 {
			return makeDate(year, f[1], f[0])
		}
		return makeDate(year, f[0], f[1])

	case namedDate.MatchString(value) && len(namedDate.FindString(value)) == len(value):
		fields := strings.Fields(strings.ReplaceAll(value, ",", " "))
		if len(fields) != 3 || len(fields[0]) < 3 {
			return time.Time{}, false
		}
		month, ok := months[strings.ToLower(fields[0][:3])]
		if !ok {
			return time.Time{}, false
		}
		day, err1 := strconv.Atoi(fields[1])
		year, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return time.Time{}, false
		}
		return makeDate(year, int(month), day)
	}

	return time.Time{}, false
}

func splitNumeric(value string) [3]int {
	var out [3]int
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == '/' || r == '-' })
	for i := 0; i < len(parts) && i < 3; i++ {
		out[i], _ = strconv.Atoi(parts[i])
	}
	return out
}

// makeDate rejects dates that time.Date would normalize, such as 2/30.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
