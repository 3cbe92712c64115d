package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts after German month names have been replaced by English ones.
const (
	postingDateLayout = "2. January 2006, 15:04:05"
	articleDateLayout = "2. January 2006, 15:04"
)

// Coral renders the locale of the embedding browser; both US and 24h forms occur.
var commentDateLayouts = []string{
	"1/2/2006, 3:04:05 PM",
	"1/2/2006, 15:04:05 PM",
	"1/2/2006, 15:04:05",
}

var germanMonths = strings.NewReplacer(
	"Jänner", "January",
	"Januar", "January",
	"Feber", "February",
	"Februar", "February",
	"März", "March",
	"Mai", "May",
	"Juni", "June",
	"Juli", "July",
	"Oktober", "October",
	"Dezember", "December",
)

// parseGermanDate parses dates like "23. Dezember 2019, 10:51:00" in loc.
func parseGermanDate(s, layout string, loc *time.Location) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	t, err := time.ParseInLocation(layout, germanMonths.Replace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func parsePostingDate(s string, loc *time.Location) (time.Time, error) {
	return parseGermanDate(s, postingDateLayout, loc)
}

func parseArticleDate(s string, loc *time.Location) (time.Time, error) {
	return parseGermanDate(s, articleDateLayout, loc)
}

// parseCommentDate parses the title attribute of a Coral comment timestamp.
func parseCommentDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range commentDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid comment date %q", s)
}

// parseCount converts rating and follower strings like "12", "1,234" or "1.2K".
// An empty string is zero.
func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", "")

	// Handle abbreviated formats (K for thousands, M for millions)
	multiplier := 1.0
	if strings.HasSuffix(strings.ToUpper(s), "K") {
		multiplier = 1000
		s = s[:len(s)-1]
	} else if strings.HasSuffix(strings.ToUpper(s), "M") {
		multiplier = 1000000
		s = s[:len(s)-1]
	}

	if multiplier == 1 {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid count %q", s)
		}
		return n, nil
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return int(value * multiplier), nil
}
