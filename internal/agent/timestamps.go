package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/signalwatch/internal/model"
)

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"01/02/2006",
	"1/2/2006",
}

var monthLayouts = []string{
	"January 2006",
	"Jan 2006",
	"2006-01",
}

// ParseTimestamp parses the date formats seen across feeds and listings and
// reports how precise the result is
func ParseTimestamp(s string) (time.Time, model.Precision, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, model.PrecisionUnknown, false
	}

	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), model.PrecisionDatetime, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), model.PrecisionDate, true
		}
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), model.PrecisionMonth, true
		}
	}
	return time.Time{}, model.PrecisionUnknown, false
}

var urlDatePattern = regexp.MustCompile(`/((?:19|20)\d{2})/(\d{1,2})/(\d{1,2})(?:/|$|[^\d])`)

// DateFromURL finds a /YYYY/MM/DD/ date in a URL path
func DateFromURL(rawURL string) (time.Time, bool) {
	m := urlDatePattern.FindStringSubmatch(rawURL)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func extractTimestamps(raw model.RawEvent) model.TimestampResult {
	result := model.MissingTimestamp()

	if t, precision, ok := ParseTimestamp(raw.Meta.Published); ok {
		result.PubTimestamp = &t
		result.PubPrecision = precision
		result.PubSource = model.ProvenanceExtracted
	} else if t, ok := DateFromURL(raw.SourceURL); ok {
		result.PubTimestamp = &t
		result.PubPrecision = model.PrecisionDate
		result.PubSource = model.ProvenanceInferred
	}

	if t, precision, ok := ParseTimestamp(raw.Meta.EventDate); ok {
		result.EventTimestamp = &t
		result.EventPrecision = precision
		result.EventSource = model.ProvenanceExtracted
	}

	return result
}
