// Package datetime turns the upstream's mixed date/time text into UTC
// instants.
//
// The upstream writes local times for one Pacific-coast region without
// zone information. Offsets are approximated with a fixed two-value rule
// instead of a timezone database.
package datetime

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrUnparseable is returned when no strategy understands the input.
var ErrUnparseable = errors.New("datetime: unparseable value")

const (
	summerOffsetHours = 7
	winterOffsetHours = 8

	// Starts at or after this local hour get the day-rollover correction.
	RolloverHour = 17
)

// Range is a normalized start/end pair in UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

var (
	// "(PDT)", "(Pacific Time)" and similar notes after the start time.
	tzNotePattern = regexp.MustCompile(`\s*\([^)]*\)`)
	spacePattern  = regexp.MustCompile(`\s+`)

	dateTimeLayouts = []string{
		"January 2, 2006 3:04 PM",
		"January 2, 2006 3:04PM",
		"January 2, 2006 3 PM",
		"January 2, 2006 15:04",
		"Jan 2, 2006 3:04 PM",
		"Jan 2, 2006 3:04PM",
		"Jan 2, 2006 15:04",
		"2006-01-02 3:04 PM",
		"2006-01-02 15:04",
		"2006/01/02 15:04",
		"01/02/2006 3:04 PM",
		"01/02/2006 15:04",
	}

	dateLayouts = []string{
		"January 2, 2006",
		"Jan 2, 2006",
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
	}

	timeLayouts = []string{
		"3:04 PM",
		"3:04PM",
		"3 PM",
		"3PM",
		"15:04",
	}

	isoLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// Normalize converts text into a Range. Supported forms, in order:
//
//	@October 19, 2025 1:15 PM (PDT) → 9:47 PM
//	@October 19, 2025 11:15 PM → October 20, 2025 1:00 AM
//	@October 19, 2025
//	2025-10-19T20:15:00Z
//
// Failure is reported as ErrUnparseable so callers can skip the value.
func Normalize(text string) (Range, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Range{}, ErrUnparseable
	}

	if strings.HasPrefix(s, "@") {
		body := clean(s)
		if startText, endText, ok := splitArrow(body); ok {
			if r, err := normalizeRange(startText, endText); err == nil {
				return r, nil
			}
			// Fall back to the part before the arrow.
			body = startText
		}
		if r, err := normalizeSingle(body); err == nil {
			return r, nil
		}
	}

	if t, err := parseISO(clean(s)); err == nil {
		return Range{Start: t, End: t}, nil
	}
	return Range{}, ErrUnparseable
}

// IsSummer reports whether the fixed rule puts the local date in the
// daylight-saving period: April through October, March 9 onwards and
// November 1-2.
func IsSummer(month time.Month, day int) bool {
	switch {
	case month >= time.April && month <= time.October:
		return true
	case month == time.March:
		return day >= 9
	case month == time.November:
		return day <= 2
	default:
		return false
	}
}

// OffsetHours is the number of hours local time is behind UTC on the
// given date.
func OffsetHours(month time.Month, day int) int {
	if IsSummer(month, day) {
		return summerOffsetHours
	}
	return winterOffsetHours
}

// Local converts an absolute instant to the region's wall clock under the
// fixed offset rule. The offset is chosen by the local date, not the UTC
// one.
func Local(t time.Time) time.Time {
	u := t.UTC()
	offset := OffsetHours(u.Month(), u.Day())
	local := u.Add(-time.Duration(offset) * time.Hour)
	if o := OffsetHours(local.Month(), local.Day()); o != offset {
		offset = o
		local = u.Add(-time.Duration(offset) * time.Hour)
	}
	return local.In(time.FixedZone("", -offset*3600))
}

// wallClock is a parsed local date and time without any zone.
type wallClock struct {
	year   int
	month  time.Month
	day    int
	hour   int
	minute int
}

func (w wallClock) utc(offsetHours int) time.Time {
	return time.Date(w.year, w.month, w.day, w.hour+offsetHours, w.minute, 0, 0, time.UTC)
}

func fromTime(t time.Time) wallClock {
	return wallClock{year: t.Year(), month: t.Month(), day: t.Day(), hour: t.Hour(), minute: t.Minute()}
}

func normalizeRange(startText, endText string) (Range, error) {
	start, err := parseWallClock(startText)
	if err != nil {
		return Range{}, err
	}

	var end wallClock
	if tod, err := parseTimeOfDay(endText); err == nil {
		// Time only: same calendar day as the start.
		end = start
		end.hour = tod.Hour()
		end.minute = tod.Minute()
	} else {
		end, err = parseWallClock(endText)
		if err != nil {
			return Range{}, err
		}
	}

	// The start date decides the offset for both ends.
	offset := OffsetHours(start.month, start.day)
	r := Range{Start: start.utc(offset), End: end.utc(offset)}

	// Late-evening starts land on the next UTC day once the offset is
	// added; pull both instants back to the stated local day.
	if start.hour >= RolloverHour {
		r.Start = r.Start.Add(-24 * time.Hour)
		r.End = r.End.Add(-24 * time.Hour)
	}
	return r, nil
}

func normalizeSingle(text string) (Range, error) {
	w, err := parseWallClock(text)
	if err != nil {
		return Range{}, err
	}
	t := w.utc(OffsetHours(w.month, w.day))
	return Range{Start: t, End: t}, nil
}

// clean strips the leading "@", parenthesised notes and repeated spaces.
func clean(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "@")
	s = tzNotePattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func splitArrow(s string) (string, string, bool) {
	for _, arrow := range []string{"→", "->"} {
		if before, after, ok := strings.Cut(s, arrow); ok {
			before = strings.TrimSpace(before)
			after = strings.TrimSpace(after)
			if before == "" || after == "" {
				return "", "", false
			}
			return before, after, true
		}
	}
	return "", "", false
}

func parseWallClock(s string) (wallClock, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return fromTime(t), nil
		}
	}
	t, err := parseDate(s)
	if err != nil {
		return wallClock{}, err
	}
	return fromTime(t), nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return fallbackParse(s)
}

func parseTimeOfDay(s string) (time.Time, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseable
}

// IsTimeOfDay reports whether s is a bare clock time such as "6:00 PM".
func IsTimeOfDay(s string) bool {
	_, err := parseTimeOfDay(s)
	return err == nil
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	t, err := fallbackParse(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseInstant parses an absolute timestamp without any unified-notation
// handling. Used for values that were kept verbatim.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseable
	}
	return parseISO(s)
}

// fallbackParse hands free-form text to dateparse, reading zone-less
// values as UTC wall clock.
func fallbackParse(s string) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = time.Time{}, ErrUnparseable
		}
	}()
	t, err = dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, ErrUnparseable
	}
	// dateparse fills a missing year with zero.
	if t.Year() == 0 {
		return time.Time{}, ErrUnparseable
	}
	return t, nil
}
