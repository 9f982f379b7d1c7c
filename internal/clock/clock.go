// Package clock normalizes bahn.de timestamps to Europe/Berlin and formats
// outgoing date/time query parameters.
package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// Embedded zone database so Europe/Berlin resolves in minimal images.
	_ "time/tzdata"
)

const (
	// DateLayout is the layout of the datum query parameter.
	DateLayout = "2006-01-02"

	// TimeLayout is the layout of the zeit query parameter.
	TimeLayout = "15:04:05"

	// UTCMillisLayout is the layout used by the formation endpoint.
	UTCMillisLayout = "2006-01-02T15:04:05.000Z"
)

// ErrInvalidTimestamp is returned when a timestamp cannot be parsed.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Berlin is the service's home timezone.
var Berlin = mustLoad("Europe/Berlin")

// offsetLayouts are tried in order for strings carrying a UTC offset.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

// naiveLayouts are tried in order for strings without a UTC offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	DateLayout,
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, reported in Berlin time.
type System struct{}

// Now returns the current instant in Europe/Berlin.
func (System) Now() time.Time {
	return Now()
}

// Now returns the current instant in Europe/Berlin.
func Now() time.Time {
	return time.Now().In(Berlin)
}

// Parse parses a timestamp from an upstream response.
//
// Naive strings ("2026-02-24T14:30:00") are read as Berlin local time.
// Offset-qualified strings ("2026-02-24T14:30:00+01:00", "+0100" offsets,
// minute precision) are converted to Berlin. A malformed offset falls
// through to the naive layouts and fails there if the string is still not
// a valid date-time.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTimestamp)
	}

	if hasOffset(s) {
		for _, layout := range offsetLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(Berlin), nil
			}
		}
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, Berlin); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// hasOffset reports whether s carries a "+HH:MM" offset, a negative offset
// (a third '-' after the two date dashes) or a "Z" suffix.
func hasOffset(s string) bool {
	return strings.Contains(s, "+") ||
		strings.Count(s, "-") > 2 ||
		strings.HasSuffix(s, "Z")
}

// FormatDate renders t as YYYY-MM-DD in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatTime renders t as HH:MM:SS in t's own location.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ToUTC converts t to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// FormatUTCMillis renders t in UTC as YYYY-MM-DDTHH:MM:SS.000Z.
// Sub-second precision is dropped; the millisecond field is always zero.
func FormatUTCMillis(t time.Time) string {
	return ToUTC(t).Truncate(time.Second).Format(UTCMillisLayout)
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("clock: load location %s: %v", name, err))
	}
	return loc
}
