package timetable

import (
	"strconv"
	"strings"
	"time"

	"github.com/railwatch/railwatch/pkg/cif"
)

// PrecedenceClass identifies which of the four STP variant tables a
// schedule or association belongs to. Lower values win resolution.
type PrecedenceClass int

const (
	ClassCancellation PrecedenceClass = iota
	ClassOverlay
	ClassNew
	ClassPermanent
)

// PrecedenceOrder is the fixed evaluation order for resolution.
var PrecedenceOrder = []PrecedenceClass{ClassCancellation, ClassOverlay, ClassNew, ClassPermanent}

func (c PrecedenceClass) String() string {
	switch c {
	case ClassCancellation:
		return "cancellation"
	case ClassOverlay:
		return "overlay"
	case ClassNew:
		return "new"
	case ClassPermanent:
		return "permanent"
	}

	return "unknown"
}

func (c PrecedenceClass) ScheduleCollection() string {
	return "schedules_" + c.String()
}

func (c PrecedenceClass) AssociationCollection() string {
	return "associations_" + c.String()
}

// ClassFromSTPIndicator maps the CIF STP indicator column onto a
// precedence class.
func ClassFromSTPIndicator(indicator string) (PrecedenceClass, bool) {
	switch indicator {
	case "C":
		return ClassCancellation, true
	case "O":
		return ClassOverlay, true
	case "N":
		return ClassNew, true
	case "P":
		return ClassPermanent, true
	}

	return 0, false
}

// DayMaskRunsOn reports whether a 7 character CIF days-run mask covers
// the weekday of the given date. Index 0 is Monday.
func DayMaskRunsOn(mask string, date time.Time) bool {
	index := (int(date.Weekday()) + 6) % 7
	if index >= len(mask) {
		return false
	}

	return mask[index] == '1'
}

// StopKind classifies one calling point within a schedule.
type StopKind string

const (
	StopKindOrigin      StopKind = "origin"
	StopKindCall        StopKind = "call"
	StopKindPass        StopKind = "pass"
	StopKindTerminating StopKind = "terminating"
)

// CallingPoint is one stop within a ScheduleVariant's ordered sequence.
// Exactly one of arrival+departure or pass is populated depending on
// Kind; sequence numbers are contiguous and strictly increasing.
type CallingPoint struct {
	Sequence   int      `groups:"basic,detailed"`
	Tiploc     string   `groups:"basic,detailed"`
	Recurrence string   `groups:"detailed"`
	Kind       StopKind `groups:"basic,detailed"`

	ScheduledArrival   cif.Time `groups:"basic,detailed"`
	ScheduledDeparture cif.Time `groups:"basic,detailed"`
	ScheduledPass      cif.Time `groups:"basic,detailed"`
	PublicArrival      cif.Time `groups:"detailed"`
	PublicDeparture    cif.Time `groups:"detailed"`

	Platform string `groups:"basic,detailed"`
	Line     string `groups:"detailed"`
	Path     string `groups:"detailed"`
	Activity string `groups:"detailed"`

	EngineeringAllowanceSecs int `groups:"detailed"`
	PathingAllowanceSecs     int `groups:"detailed"`
	PerformanceAllowanceSecs int `groups:"detailed"`
}

// ParseAllowanceSecs converts a CIF allowance field (whole minutes with
// an optional H meaning an extra half minute) into seconds.
func ParseAllowanceSecs(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0
	}

	seconds := 0
	if strings.HasSuffix(trimmed, "H") {
		seconds = 30
		trimmed = strings.TrimSuffix(trimmed, "H")
	}

	if trimmed != "" {
		if minutes, err := strconv.Atoi(trimmed); err == nil {
			seconds += minutes * 60
		}
	}

	return seconds
}

// ScheduleVariant is one timetabled service as found in one precedence
// class. Immutable once stored; superseded only by reimporting the same
// UID in the same class.
type ScheduleVariant struct {
	TrainUID string          `groups:"basic,detailed"`
	Headcode string          `groups:"basic,detailed"`
	Class    PrecedenceClass `groups:"basic,detailed"`

	RunsFrom time.Time `groups:"basic,detailed"`
	RunsTo   time.Time `groups:"basic,detailed"`
	DaysRun  string    `groups:"basic,detailed"`

	TrainStatus              string `groups:"detailed"`
	TrainCategory            string `groups:"detailed"`
	TrainServiceCode         string `groups:"detailed"`
	PowerType                string `groups:"detailed"`
	TimingLoad               string `groups:"detailed"`
	Speed                    int    `groups:"detailed"`
	OperatingCharacteristics string `groups:"detailed"`
	ATOCCode                 string `groups:"detailed"`

	CreationDateTime time.Time `groups:"detailed"`

	CallingPoints []CallingPoint `groups:"detailed"`
}

// RunsOnDate reports whether the variant's validity window contains the
// date and its day mask covers the date's weekday.
func (v *ScheduleVariant) RunsOnDate(date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if day.Before(v.RunsFrom) || day.After(v.RunsTo) {
		return false
	}

	return DayMaskRunsOn(v.DaysRun, day)
}

func (v *ScheduleVariant) CallsAt(tiploc string) bool {
	for _, point := range v.CallingPoints {
		if point.Tiploc == tiploc {
			return true
		}
	}

	return false
}

const (
	AssociationJoin    = "JJ"
	AssociationDivide  = "VV"
	AssociationNextDay = "NP"
)

// Association links two train UIDs at a shared location - a join, divide
// or next-day-working - carrying its own precedence class and validity
// window.
type Association struct {
	MainUID       string `groups:"basic,detailed"`
	AssociatedUID string `groups:"basic,detailed"`

	Category      string `groups:"basic,detailed"`
	DateIndicator string `groups:"detailed"`
	Location      string `groups:"basic,detailed"`
	BaseSuffix    string `groups:"detailed"`
	AssocSuffix   string `groups:"detailed"`

	DateFrom time.Time       `groups:"detailed"`
	DateTo   time.Time       `groups:"detailed"`
	DaysRun  string          `groups:"detailed"`
	Class    PrecedenceClass `groups:"detailed"`
}

func (a *Association) AppliesOn(date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if day.Before(a.DateFrom) || day.After(a.DateTo) {
		return false
	}

	return DayMaskRunsOn(a.DaysRun, day)
}

// ParsedFile records one successfully applied extract file, giving the
// importer its monotonic last-processed marker.
type ParsedFile struct {
	FileRef     string
	ExtractType string
	Filename    string
	ProcessedAt time.Time
}
