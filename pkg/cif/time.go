package cif

import (
	"fmt"
	"strings"
	"time"
)

// Time is a wall-clock timetable time with no date attached. CIF scheduled
// times carry an optional trailing "H" meaning half-past the minute, so
// second-level precision is kept.
type Time struct {
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
	Second int  `json:"second"`
	Valid  bool `json:"valid"`
}

const secondsPerDay = 24 * 60 * 60

// ParseScheduledTime decodes a 5 character CIF working time field, eg
// "1810H" for 18:10:30. A blank field decodes to an unset Time.
func ParseScheduledTime(field string) (Time, error) {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return Time{}, nil
	}

	seconds := 0
	if strings.HasSuffix(trimmed, "H") {
		seconds = 30
		trimmed = trimmed[:len(trimmed)-1]
	}

	return parseHHMM(trimmed, seconds)
}

// ParsePublicTime decodes a 4 character CIF public time field. "0000" is
// the CIF convention for "no public time" and decodes to an unset Time.
func ParsePublicTime(field string) (Time, error) {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" || trimmed == "0000" {
		return Time{}, nil
	}

	return parseHHMM(trimmed, 0)
}

func parseHHMM(value string, seconds int) (Time, error) {
	if len(value) != 4 {
		return Time{}, fmt.Errorf("time %q is not 4 digits", value)
	}

	var hour, minute int
	if _, err := fmt.Sscanf(value, "%2d%2d", &hour, &minute); err != nil {
		return Time{}, fmt.Errorf("time %q is not numeric", value)
	}

	if hour > 23 || minute > 59 {
		return Time{}, fmt.Errorf("time %q out of range", value)
	}

	return Time{Hour: hour, Minute: minute, Second: seconds, Valid: true}, nil
}

// TimeFromSeconds builds a Time from seconds past midnight, wrapping at
// midnight for services that run over the day boundary.
func TimeFromSeconds(seconds int) Time {
	seconds = ((seconds % secondsPerDay) + secondsPerDay) % secondsPerDay

	return Time{
		Hour:   seconds / 3600,
		Minute: (seconds % 3600) / 60,
		Second: seconds % 60,
		Valid:  true,
	}
}

func (t Time) Seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t Time) AddSeconds(seconds int) Time {
	if !t.Valid {
		return t
	}

	return TimeFromSeconds(t.Seconds() + seconds)
}

// On places the wall-clock time onto the given calendar date, in that
// date's location.
func (t Time) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, t.Second, 0, date.Location())
}

func (t Time) String() string {
	if !t.Valid {
		return ""
	}

	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// EncodeScheduled renders the time back into the 5 character CIF working
// time field, byte for byte.
func (t Time) EncodeScheduled() string {
	if !t.Valid {
		return "     "
	}

	suffix := " "
	if t.Second >= 30 {
		suffix = "H"
	}

	return fmt.Sprintf("%02d%02d%s", t.Hour, t.Minute, suffix)
}

// EncodePublic renders the time back into the 4 character CIF public time
// field, with "0000" meaning unset.
func (t Time) EncodePublic() string {
	if !t.Valid {
		return "0000"
	}

	return fmt.Sprintf("%02d%02d", t.Hour, t.Minute)
}
