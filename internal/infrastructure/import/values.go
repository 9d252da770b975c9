package csvimport

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"1/2/2006",
	time.RFC3339,
}

// ParseExportDate parses the date formats CRM exports use. Empty input is
// an absent date. The result is midnight UTC of the calendar day.
func ParseExportDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 {
			t = t.UTC()
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d, nil
	}
	return nil, fmt.Errorf("unrecognized date %q", value)
}

// ParseAmount parses money values such as "1234.5", "1.234,50",
// "1,234.50" or "€ 12.000". A lone separator followed by exactly three
// digits groups thousands, whether it is a dot or a comma. Empty input is an
// absent amount.
func ParseAmount(value string) (*decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		}
		return -1
	}, value)
	if s == "" {
		if strings.TrimSpace(value) == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid amount %q", value)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && !groupsThousands(s, lastComma) {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || groupsThousands(s, lastDot) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return &d, nil
}

// groupsThousands reports whether the separator at i splits off a group of
// three digits from a leading group of one to three digits, as in "12.000"
func groupsThousands(s string, i int) bool {
	if len(s)-i-1 != 3 {
		return false
	}
	lead := strings.TrimPrefix(s[:i], "-")
	return len(lead) >= 1 && len(lead) <= 3 && lead[0] != '0'
}

// linkActions are trailing path segments that name a view, not a record
var linkActions = map[string]bool{"view": true, "edit": true}

// ExternalIDFromLink derives the stable record id from a CRM link: the last
// meaningful path segment, ignoring query, fragment and view suffixes. A
// bare id is returned unchanged.
func ExternalIDFromLink(link string) string {
	s := strings.TrimSpace(link)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		rest := s[i+3:]
		j := strings.Index(rest, "/")
		if j < 0 {
			return ""
		}
		s = rest[j:]
	}
	segments := strings.Split(s, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segments[i])
		if seg == "" || linkActions[strings.ToLower(seg)] {
			continue
		}
		return seg
	}
	return ""
}
