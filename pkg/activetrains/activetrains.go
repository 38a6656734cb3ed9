package activetrains

import (
	"fmt"
	"sync"
	"time"

	"github.com/railwatch/railwatch/pkg/cif"
	"github.com/railwatch/railwatch/pkg/timetable"
)

const DefaultLateDwellSecs = 30

// LateDwellConfig gives the minimum dwell a late train must still spend
// at a station, per location, when trimming dwell to recover delay.
type LateDwellConfig struct {
	DefaultSecs int            `yaml:"defaultsecs"`
	Overrides   map[string]int `yaml:"overrides"`
}

func (c LateDwellConfig) For(tiploc string) int {
	if secs, ok := c.Overrides[tiploc]; ok {
		return secs
	}

	if c.DefaultSecs > 0 {
		return c.DefaultSecs
	}

	return DefaultLateDwellSecs
}

// ActiveStop is one stop of a running train, carrying the timetabled
// times plus the forecast, actual and predicted layers filled in as
// real-time data arrives.
type ActiveStop struct {
	Sequence   int                `groups:"basic,detailed"`
	Tiploc     string             `groups:"basic,detailed"`
	Recurrence string             `groups:"detailed"`
	Kind       timetable.StopKind `groups:"basic,detailed"`
	Platform   string             `groups:"basic,detailed"`

	TimetabledArrival   cif.Time `groups:"basic,detailed"`
	TimetabledDeparture cif.Time `groups:"basic,detailed"`
	TimetabledPass      cif.Time `groups:"detailed"`

	ForecastArrival   cif.Time `groups:"detailed"`
	ForecastDeparture cif.Time `groups:"detailed"`
	ForecastPass      cif.Time `groups:"detailed"`

	ActualArrival   cif.Time `groups:"detailed"`
	ActualDeparture cif.Time `groups:"detailed"`
	ActualPass      cif.Time `groups:"detailed"`

	PredictedArrival   cif.Time `groups:"basic,detailed"`
	PredictedDeparture cif.Time `groups:"basic,detailed"`
	PredictedPass      cif.Time `groups:"detailed"`

	DelayMins int `groups:"basic,detailed"`

	// LateDwellSecs is the dwell floor used when trimming this stop's
	// dwell; RecoverySecs is the sectional running slack to the next
	// stop. Recovery is loaded as zero until a timing model supplies it.
	LateDwellSecs int `groups:"detailed"`
	RecoverySecs  int `groups:"detailed"`
}

// HasForecast reports whether any forecast-layer time is populated.
func (s *ActiveStop) HasForecast() bool {
	return s.ForecastArrival.Valid || s.ForecastDeparture.Valid || s.ForecastPass.Valid
}

// ScheduledSeconds is the stop's primary timetabled time as seconds
// since midnight, preferring departure, then arrival, then pass.
func (s *ActiveStop) ScheduledSeconds() int {
	if s.TimetabledDeparture.Valid {
		return s.TimetabledDeparture.Seconds()
	}
	if s.TimetabledArrival.Valid {
		return s.TimetabledArrival.Seconds()
	}

	return s.TimetabledPass.Seconds()
}

// AssociationLink is a non-owning reference from one active train to
// another it joins, divides from or continues as.
type AssociationLink struct {
	Category string `groups:"detailed"`
	OtherUID string `groups:"detailed"`
	Location string `groups:"detailed"`
}

// ActiveTrain is one train on one railway day. All mutation happens
// under the train's own lock so events for different trains never block
// each other.
type ActiveTrain struct {
	mutex sync.Mutex

	TrainUID string    `groups:"basic,detailed"`
	Headcode string    `groups:"basic,detailed"`
	Date     time.Time `groups:"basic,detailed"`

	ATOCCode      string `groups:"detailed"`
	TrainCategory string `groups:"detailed"`
	PowerType     string `groups:"detailed"`

	Cancelled  bool `groups:"basic,detailed"`
	Detected   bool `groups:"basic,detailed"`
	Terminated bool `groups:"basic,detailed"`

	CurrentBerth   string    `groups:"detailed"`
	LastTiploc     string    `groups:"basic,detailed"`
	LastStopIndex  int       `groups:"detailed"`
	LastObservedAt time.Time `groups:"basic,detailed"`

	// DelayMins is the train's overall delay from the most recent
	// observation or forecast; DelayUpdatedAt records when it was set.
	DelayMins      int       `groups:"basic,detailed"`
	DelayUpdatedAt time.Time `groups:"detailed"`

	Stops        []*ActiveStop     `groups:"detailed"`
	Associations []AssociationLink `groups:"detailed"`
}

func (t *ActiveTrain) Lock() {
	t.mutex.Lock()
}

func (t *ActiveTrain) Unlock() {
	t.mutex.Unlock()
}

// Position describes where the train was last seen. Callers hold the
// train's lock or operate on a snapshot.
func (t *ActiveTrain) Position() string {
	if t.LastTiploc == "" {
		return "Not yet detected"
	}

	if t.Terminated || t.LastStopIndex >= len(t.Stops)-1 {
		return fmt.Sprintf("At %s", t.LastTiploc)
	}

	next := t.Stops[t.LastStopIndex+1]

	return fmt.Sprintf("Between %s and %s", t.LastTiploc, next.Tiploc)
}

// FinalStop returns the train's terminating stop, or nil for a
// cancelled train with no calling pattern.
func (t *ActiveTrain) FinalStop() *ActiveStop {
	if len(t.Stops) == 0 {
		return nil
	}

	return t.Stops[len(t.Stops)-1]
}

// stopIndicesAt returns the indices of every stop at a location.
// Schedules can legitimately call at the same location more than once,
// circular services for example.
func (t *ActiveTrain) stopIndicesAt(tiploc string) []int {
	var indices []int
	for index, stop := range t.Stops {
		if stop.Tiploc == tiploc {
			indices = append(indices, index)
		}
	}

	return indices
}

// nearestStopIndexAt picks the stop at a location whose timetabled time
// is closest to the reference seconds, for schedules calling there more
// than once.
func (t *ActiveTrain) nearestStopIndexAt(tiploc string, referenceSecs int) (int, bool) {
	indices := t.stopIndicesAt(tiploc)
	if len(indices) == 0 {
		return 0, false
	}

	best := indices[0]
	bestDistance := -1
	for _, index := range indices {
		distance := absInt(t.Stops[index].ScheduledSeconds() - referenceSecs)
		if bestDistance < 0 || distance < bestDistance {
			best = index
			bestDistance = distance
		}
	}

	return best, true
}

func absInt(value int) int {
	if value < 0 {
		return -value
	}

	return value
}

// NewActiveTrain builds the day's train from a resolved schedule
// variant, seeding every predicted time from the timetable.
func NewActiveTrain(variant *timetable.ScheduleVariant, date time.Time, lateDwell LateDwellConfig) *ActiveTrain {
	train := &ActiveTrain{
		TrainUID:      variant.TrainUID,
		Headcode:      variant.Headcode,
		Date:          date,
		ATOCCode:      variant.ATOCCode,
		TrainCategory: variant.TrainCategory,
		PowerType:     variant.PowerType,
		LastStopIndex: -1,
	}

	for _, point := range variant.CallingPoints {
		train.Stops = append(train.Stops, &ActiveStop{
			Sequence:   point.Sequence,
			Tiploc:     point.Tiploc,
			Recurrence: point.Recurrence,
			Kind:       point.Kind,
			Platform:   point.Platform,

			TimetabledArrival:   point.ScheduledArrival,
			TimetabledDeparture: point.ScheduledDeparture,
			TimetabledPass:      point.ScheduledPass,

			PredictedArrival:   point.ScheduledArrival,
			PredictedDeparture: point.ScheduledDeparture,
			PredictedPass:      point.ScheduledPass,

			LateDwellSecs: lateDwell.For(point.Tiploc),
		})
	}

	return train
}

// NewCancelledTrain represents a UID whose resolution on this date came
// back as cancelled. It stays visible so readers can distinguish
// cancelled from unknown.
func NewCancelledTrain(trainUID string, date time.Time) *ActiveTrain {
	return &ActiveTrain{
		TrainUID:      trainUID,
		Date:          date,
		Cancelled:     true,
		LastStopIndex: -1,
	}
}
