package util

import (
	"time"
)

// AddTimeToDate combines the wall-clock portion of sourceTime with the
// calendar portion of date, in date's location.
func AddTimeToDate(date time.Time, sourceTime time.Time) time.Time {
	newDateTime := time.Date(date.Year(), date.Month(), date.Day(), sourceTime.Hour(), sourceTime.Minute(), sourceTime.Second(), sourceTime.Nanosecond(), date.Location())

	return newDateTime
}
