package model

import (
	"regexp"
	"strings"
)

// EntityFamily is a well-known identifier format (report, bill or case
// numbers). When the pattern has a capture group, the group is the value.
type EntityFamily struct {
	Key        string
	SourceType string // the source family that publishes these identifiers
	Pattern    *regexp.Regexp
}

// EntityFamilies lists the identifier formats recognized in any text, in key order
var EntityFamilies = []EntityFamily{
	{Key: "bill", SourceType: "bill", Pattern: regexp.MustCompile(`(?i)(?:^|[^.\w])((?:H\.\s?R\.|H\.\s?Res\.|S\.\s?Res\.|S\.)\s?\d{1,5})\b`)},
	{Key: "court_case", SourceType: "court", Pattern: regexp.MustCompile(`\bNo\.\s?(\d{2}-\d{1,5})\b`)},
	{Key: "gao_report", SourceType: "gao", Pattern: regexp.MustCompile(`(?i)\b(GAO-\d{2}-\d{3,6}[A-Z]?)\b`)},
	{Key: "oig_report", SourceType: "oig", Pattern: regexp.MustCompile(`\b(\d{2}-\d{5}-\d{2,4})\b`)},
}

// Find returns the first normalized identifier of this family in text
func (f EntityFamily) Find(text string) (string, bool) {
	return firstMatch(f.Pattern, text)
}

func firstMatch(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	value := m[0]
	if len(m) > 1 && m[1] != "" {
		value = m[1]
	}
	value = NormalizeRef(value)
	return value, value != ""
}

// FindRef applies an arbitrary reference pattern with the same capture and
// normalization rules as the built-in families
func FindRef(re *regexp.Regexp, text string) (string, bool) {
	return firstMatch(re, text)
}

var refDotSpace = regexp.MustCompile(`\.\s+(\d)`)

// NormalizeRef canonicalizes an entity identifier so the same report, bill or
// case number written differently by two sources compares equal
// ("h.r. 1234" and "H.R.1234" both become "H.R.1234")
func NormalizeRef(v string) string {
	v = strings.ToUpper(strings.Join(strings.Fields(v), " "))
	return refDotSpace.ReplaceAllString(v, ".$1")
}

// NormalizeCaseNumber reduces a docket label ("No. 24-1187") to its number
func NormalizeCaseNumber(v string) string {
	for _, f := range EntityFamilies {
		if f.Key != "court_case" {
			continue
		}
		if n, ok := f.Find(v); ok {
			return n
		}
	}
	return NormalizeRef(v)
}
