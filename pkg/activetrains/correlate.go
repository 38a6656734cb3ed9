package activetrains

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/railwatch/railwatch/pkg/cif"
)

// Movement event kinds from the track occupancy feed.
const (
	MovementArrival   = "arrival"
	MovementDeparture = "departure"
	MovementPass      = "pass"
	MovementStep      = "step"
	MovementCancel    = "cancel"
)

// ForecastLocation is one location's worth of predicted times within a
// forecast event. DelayMins is optional; when absent the delay is
// derived from the forecast against the timetable.
type ForecastLocation struct {
	Tiploc            string
	ForecastArrival   cif.Time
	ForecastDeparture cif.Time
	ForecastPass      cif.Time
	DelayMins         *int
	Platform          string
}

// ForecastEvent carries a prediction feed update for one train,
// identified by UID when the producer knows it, headcode otherwise.
type ForecastEvent struct {
	TrainUID  string
	Headcode  string
	Locations []ForecastLocation
}

// MovementEvent is one observation from the track occupancy feed.
type MovementEvent struct {
	TrainUID  string
	Headcode  string
	Tiploc    string
	Timestamp time.Time
	Kind      string
	FromBerth string
	ToBerth   string
}

// BerthLocator correlates signalling berths with timetable locations.
type BerthLocator interface {
	Locate(berth string) (string, bool)
}

// AmbiguousMatchError reports a movement event whose headcode matched
// several trains and no tiebreak singled one out. The event is dropped
// rather than guessed at.
type AmbiguousMatchError struct {
	Headcode   string
	Tiploc     string
	Candidates []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf(
		"ambiguous movement match for headcode %s at %s between %s",
		e.Headcode, e.Tiploc, strings.Join(e.Candidates, ", "),
	)
}

// Correlator applies real-time events onto the active registry.
type Correlator struct {
	Registry *Manager
	Berths   BerthLocator
}

func NewCorrelator(registry *Manager, berths BerthLocator) *Correlator {
	return &Correlator{
		Registry: registry,
		Berths:   berths,
	}
}

// ApplyForecast overlays forecast times onto every train the event
// identifies and repropagates delay from each forecast location.
func (c *Correlator) ApplyForecast(event ForecastEvent) error {
	trains := c.Registry.live(event.TrainUID, event.Headcode)
	if len(trains) == 0 {
		log.Debug().
			Str("trainuid", event.TrainUID).
			Str("headcode", event.Headcode).
			Msg("Forecast for train not in registry")

		return nil
	}

	for _, train := range trains {
		c.applyForecastToTrain(train, event)
	}

	return nil
}

func (c *Correlator) applyForecastToTrain(train *ActiveTrain, event ForecastEvent) {
	train.Lock()
	defer train.Unlock()

	c.markDetected(train)

	for _, location := range event.Locations {
		referenceSecs, ok := forecastReferenceSecs(location)
		if !ok {
			continue
		}

		index, found := train.nearestStopIndexAt(location.Tiploc, referenceSecs)
		if !found {
			continue
		}
		stop := train.Stops[index]

		if location.ForecastArrival.Valid {
			stop.ForecastArrival = location.ForecastArrival
		}
		if location.ForecastDeparture.Valid {
			stop.ForecastDeparture = location.ForecastDeparture
		}
		if location.ForecastPass.Valid {
			stop.ForecastPass = location.ForecastPass
		}
		if location.Platform != "" {
			stop.Platform = location.Platform
		}

		if location.DelayMins != nil {
			stop.DelayMins = *location.DelayMins
		} else {
			stop.DelayMins = forecastDelayMins(stop, location)
		}

		train.propagateFrom(index)
		train.DelayMins = stop.DelayMins
		train.DelayUpdatedAt = time.Now()
	}
}

func forecastReferenceSecs(location ForecastLocation) (int, bool) {
	switch {
	case location.ForecastArrival.Valid:
		return location.ForecastArrival.Seconds(), true
	case location.ForecastDeparture.Valid:
		return location.ForecastDeparture.Seconds(), true
	case location.ForecastPass.Valid:
		return location.ForecastPass.Seconds(), true
	}

	return 0, false
}

// forecastDelayMins derives a stop's delay from its forecast time
// against the matching timetabled time when the feed supplies no
// explicit figure.
func forecastDelayMins(stop *ActiveStop, location ForecastLocation) int {
	var forecastSecs, scheduledSecs int

	switch {
	case location.ForecastArrival.Valid && stop.TimetabledArrival.Valid:
		forecastSecs = location.ForecastArrival.Seconds()
		scheduledSecs = stop.TimetabledArrival.Seconds()
	case location.ForecastDeparture.Valid && stop.TimetabledDeparture.Valid:
		forecastSecs = location.ForecastDeparture.Seconds()
		scheduledSecs = stop.TimetabledDeparture.Seconds()
	case location.ForecastPass.Valid && stop.TimetabledPass.Valid:
		forecastSecs = location.ForecastPass.Seconds()
		scheduledSecs = stop.TimetabledPass.Seconds()
	default:
		return stop.DelayMins
	}

	deltaSecs := forecastSecs - scheduledSecs

	// Forecasts near midnight can land on the other side of the
	// timetabled time's day.
	if deltaSecs > 12*60*60 {
		deltaSecs -= 24 * 60 * 60
	}
	if deltaSecs < -12*60*60 {
		deltaSecs += 24 * 60 * 60
	}

	return int(math.Round(float64(deltaSecs) / 60))
}

// ApplyMovement matches one track occupancy observation to a train and
// records its actual time, then repropagates downstream delay.
func (c *Correlator) ApplyMovement(event MovementEvent) error {
	candidates := c.Registry.live(event.TrainUID, event.Headcode)
	if len(candidates) == 0 {
		log.Debug().
			Str("trainuid", event.TrainUID).
			Str("headcode", event.Headcode).
			Str("tiploc", event.Tiploc).
			Msg("Movement for train not in registry")

		return nil
	}

	train, err := c.resolveCandidate(candidates, event)
	if err != nil {
		log.Warn().Err(err).Msg("Dropping ambiguous movement event")

		return err
	}

	c.applyMovementToTrain(train, event)

	return nil
}

// resolveCandidate narrows a headcode's candidate trains down to one:
// a uniquely detected candidate wins, then a berth correlation against
// each candidate's next expected stop, then whichever candidate's
// timetable at this location sits closest to the event timestamp.
func (c *Correlator) resolveCandidate(candidates []*ActiveTrain, event MovementEvent) (*ActiveTrain, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	var detected []*ActiveTrain
	for _, candidate := range candidates {
		candidate.Lock()
		isDetected := candidate.Detected
		candidate.Unlock()

		if isDetected {
			detected = append(detected, candidate)
		}
	}

	pool := candidates
	if len(detected) == 1 {
		return detected[0], nil
	}
	if len(detected) > 1 {
		pool = detected
	}

	if chosen := c.resolveByBerth(pool, event); chosen != nil {
		log.Info().
			Str("headcode", event.Headcode).
			Str("trainuid", chosen.TrainUID).
			Str("berth", event.ToBerth).
			Msg("Resolved movement candidate by berth correlation")

		return chosen, nil
	}

	if chosen := c.resolveByNearestTime(pool, event); chosen != nil {
		log.Info().
			Str("headcode", event.Headcode).
			Str("trainuid", chosen.TrainUID).
			Str("tiploc", event.Tiploc).
			Msg("Resolved movement candidate by nearest scheduled time")

		return chosen, nil
	}

	var uids []string
	for _, candidate := range pool {
		uids = append(uids, candidate.TrainUID)
	}

	return nil, &AmbiguousMatchError{
		Headcode:   event.Headcode,
		Tiploc:     event.Tiploc,
		Candidates: uids,
	}
}

func (c *Correlator) resolveByBerth(pool []*ActiveTrain, event MovementEvent) *ActiveTrain {
	if c.Berths == nil || event.ToBerth == "" {
		return nil
	}

	berthTiploc, known := c.Berths.Locate(event.ToBerth)
	if !known {
		return nil
	}

	var matched []*ActiveTrain
	for _, candidate := range pool {
		candidate.Lock()
		nextIndex := candidate.LastStopIndex + 1
		matches := nextIndex < len(candidate.Stops) && candidate.Stops[nextIndex].Tiploc == berthTiploc
		candidate.Unlock()

		if matches {
			matched = append(matched, candidate)
		}
	}

	if len(matched) == 1 {
		return matched[0]
	}

	return nil
}

func (c *Correlator) resolveByNearestTime(pool []*ActiveTrain, event MovementEvent) *ActiveTrain {
	eventSecs := c.localClockSecs(event.Timestamp)

	var chosen *ActiveTrain
	bestDistance := -1
	tied := false

	for _, candidate := range pool {
		candidate.Lock()
		index, found := candidate.nearestStopIndexAt(event.Tiploc, eventSecs)
		var distance int
		if found {
			distance = absInt(candidate.Stops[index].ScheduledSeconds() - eventSecs)
		}
		candidate.Unlock()

		if !found {
			continue
		}

		if bestDistance < 0 || distance < bestDistance {
			chosen = candidate
			bestDistance = distance
			tied = false
		} else if distance == bestDistance {
			tied = true
		}
	}

	if tied {
		return nil
	}

	return chosen
}

func (c *Correlator) applyMovementToTrain(train *ActiveTrain, event MovementEvent) {
	train.Lock()
	defer train.Unlock()

	c.markDetected(train)

	if event.ToBerth != "" {
		train.CurrentBerth = event.ToBerth
	}
	train.LastObservedAt = event.Timestamp

	if event.Kind == MovementStep {
		c.applyBerthStep(train, event)

		return
	}

	if event.Kind == MovementCancel {
		train.Cancelled = true
		train.Terminated = true

		log.Info().
			Str("trainuid", train.TrainUID).
			Str("headcode", train.Headcode).
			Msg("Train cancelled by movement feed")

		return
	}

	// Feeds deliver instants; the timetable speaks railway wall clock.
	local := event.Timestamp.In(c.Registry.Location())
	eventSecs := local.Hour()*3600 + local.Minute()*60 + local.Second()

	index, found := train.nearestStopIndexAt(event.Tiploc, eventSecs)
	if !found {
		log.Debug().
			Str("trainuid", train.TrainUID).
			Str("tiploc", event.Tiploc).
			Msg("Movement location not in train's calling pattern")

		return
	}
	stop := train.Stops[index]

	actual := cif.Time{
		Hour:   local.Hour(),
		Minute: local.Minute(),
		Second: local.Second(),
		Valid:  true,
	}

	var scheduled cif.Time
	switch event.Kind {
	case MovementArrival:
		stop.ActualArrival = actual
		scheduled = stop.TimetabledArrival
	case MovementDeparture:
		stop.ActualDeparture = actual
		scheduled = stop.TimetabledDeparture
	case MovementPass:
		stop.ActualPass = actual
		scheduled = stop.TimetabledPass
	default:
		log.Warn().
			Str("kind", event.Kind).
			Str("trainuid", train.TrainUID).
			Msg("Unknown movement event kind")

		return
	}

	if !scheduled.Valid {
		scheduled = cif.TimeFromSeconds(stop.ScheduledSeconds())
	}

	delay := c.observedDelayMins(event.Timestamp, scheduled, train.Date, train.TrainUID)
	stop.DelayMins = delay
	train.DelayMins = delay
	train.DelayUpdatedAt = event.Timestamp
	train.LastTiploc = stop.Tiploc
	train.LastStopIndex = index

	if event.Kind == MovementArrival && train.FinalStop() == stop {
		train.Terminated = true

		log.Info().
			Str("trainuid", train.TrainUID).
			Str("tiploc", stop.Tiploc).
			Int("delaymins", delay).
			Msg("Train terminated")
	}

	train.propagateFrom(index)
}

// applyBerthStep handles a berth-to-berth step, which carries no
// timing but can refine the train's position.
func (c *Correlator) applyBerthStep(train *ActiveTrain, event MovementEvent) {
	if c.Berths == nil || event.ToBerth == "" {
		return
	}

	tiploc, known := c.Berths.Locate(event.ToBerth)
	if !known {
		return
	}

	eventSecs := c.localClockSecs(event.Timestamp)
	if index, found := train.nearestStopIndexAt(tiploc, eventSecs); found {
		train.LastTiploc = tiploc
		train.LastStopIndex = index
	}
}

// localClockSecs converts a feed instant to seconds past midnight on
// the railway's wall clock.
func (c *Correlator) localClockSecs(instant time.Time) int {
	local := instant.In(c.Registry.Location())

	return local.Hour()*3600 + local.Minute()*60 + local.Second()
}

func (c *Correlator) markDetected(train *ActiveTrain) {
	if train.Detected {
		return
	}

	train.Detected = true

	log.Info().
		Str("trainuid", train.TrainUID).
		Str("headcode", train.Headcode).
		Msg("Train detected on the network")
}

// observedDelayMins compares an observation against the timetabled time
// on the train's railway date. Deltas past midnight are folded back
// into range and anything beyond six hours is clamped as implausible.
func (c *Correlator) observedDelayMins(actual time.Time, scheduled cif.Time, date time.Time, trainUID string) int {
	location := c.Registry.Location()

	scheduledAt := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, location).
		Add(time.Duration(scheduled.Seconds()) * time.Second)

	delta := actual.In(location).Sub(scheduledAt)

	if delta > 12*time.Hour {
		delta -= 24 * time.Hour
	}
	if delta < -12*time.Hour {
		delta += 24 * time.Hour
	}

	if delta > 6*time.Hour || delta < -6*time.Hour {
		log.Warn().
			Str("trainuid", trainUID).
			Dur("delta", delta).
			Msg("Implausible observed delay, clamping")

		if delta > 0 {
			delta = 6 * time.Hour
		} else {
			delta = -6 * time.Hour
		}
	}

	return int(math.Round(delta.Minutes()))
}
