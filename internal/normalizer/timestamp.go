// Package normalizer turns heterogeneous provider fields into canonical context records.
package normalizer

import (
	"encoding/json"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"freshctx/internal/models"
)

// isoLayouts are tried in order against string timestamps.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	models.DisplayLayout,
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
}

// mailLayouts cover RFC 822 / RFC 1123 style feed dates.
var mailLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC822,
	time.RFC822Z,
}

// rfc822Zones are the named zones of RFC 822 section 5. time.Parse gives any
// other abbreviation a zero offset unless the local zone happens to define it.
var rfc822Zones = map[string]int{
	"UT": 0, "UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// Normalize converts a raw timestamp into its orderable time and display string.
// Anything it cannot interpret yields the zero time and models.UnknownDate.
func Normalize(raw any) (time.Time, string) {
	t, ok := Coerce(raw)
	if !ok {
		return time.Time{}, models.UnknownDate
	}

	return t, t.Format(models.DisplayLayout)
}

// Display renders t in the canonical display form.
func Display(t time.Time) string {
	if t.IsZero() {
		return models.UnknownDate
	}

	return t.UTC().Format(models.DisplayLayout)
}

// Coerce parses raw into a UTC time truncated to the minute, so that
// re-parsing the display form reproduces the same instant.
func Coerce(raw any) (time.Time, bool) {
	t, ok := coerce(raw)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}

	return t.UTC().Truncate(time.Minute), true
}

func coerce(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}

		return *v, !v.IsZero()
	case string:
		return parseString(v)
	case *string:
		if v == nil {
			return time.Time{}, false
		}

		return parseString(*v)
	case int:
		return fromYear(v)
	case int64:
		return fromYear(int(v))
	case int32:
		return fromYear(int(v))
	case float64:
		if v != math.Trunc(v) {
			return time.Time{}, false
		}

		return fromYear(int(v))
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}

		return fromYear(int(n))
	case []int:
		return FromDateParts(v)
	default:
		return time.Time{}, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == models.UnknownDate {
		return time.Time{}, false
	}

	if yearPattern.MatchString(s) {
		year, _ := strconv.Atoi(s)

		return fromYear(year)
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	for _, layout := range mailLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return withMailZone(t, s)
		}
	}

	if t, err := mail.ParseDate(s); err == nil {
		return withMailZone(t, s)
	}

	return time.Time{}, false
}

// withMailZone applies the RFC 822 offset when raw ends in a named zone.
// Unknown names are rejected rather than read as UTC; numeric offsets pass through.
func withMailZone(t time.Time, raw string) (time.Time, bool) {
	fields := strings.Fields(raw)

	name := fields[len(fields)-1]
	if !isZoneName(name) {
		return t, true
	}

	hours, ok := rfc822Zones[strings.ToUpper(name)]
	if !ok {
		return time.Time{}, false
	}

	zone := time.FixedZone(name, hours*3600)

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone), true
}

func isZoneName(name string) bool {
	for _, r := range name {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}

	return true
}

func fromYear(year int) (time.Time, bool) {
	if year < 1 || year > 9999 {
		return time.Time{}, false
	}

	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
}

// FromDateParts builds a date from bibliographic [year, month, day] parts.
// Missing month or day default to 1; out-of-range values are rejected.
func FromDateParts(parts []int) (time.Time, bool) {
	if len(parts) == 0 {
		return time.Time{}, false
	}

	year, month, day := parts[0], 1, 1
	if len(parts) > 1 {
		month = parts[1]
	}

	if len(parts) > 2 {
		day = parts[2]
	}

	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// time.Date rolled an impossible day (Feb 30) into the next month
		return time.Time{}, false
	}

	return t, true
}

// IsStale reports whether a known timestamp falls before now minus maxAgeDays.
// Unknown (zero) timestamps are never stale.
func IsStale(t, now time.Time, maxAgeDays int) bool {
	if t.IsZero() {
		return false
	}

	cutoff := now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	return t.Before(cutoff)
}
