package activetrains

import (
	"github.com/railwatch/railwatch/pkg/cif"
	"github.com/railwatch/railwatch/pkg/timetable"
)

// propagateFrom pushes the delay observed or forecast at the anchor
// stop through every downstream stop. Internally the arithmetic runs in
// seconds so that sub-minute dwell trims at successive stations do not
// compound into rounding error; each stop's reported delay is whole
// minutes, rounded down. The caller holds the train's lock.
func (t *ActiveTrain) propagateFrom(anchorIndex int) {
	if anchorIndex < 0 || anchorIndex >= len(t.Stops) {
		return
	}

	anchor := t.Stops[anchorIndex]
	anchor.adoptForecast()

	carriedSecs := anchor.DelayMins * 60
	anchor.synthesizePredicted(carriedSecs)

	if carriedSecs <= 0 {
		return
	}

	previous := anchor
	for _, stop := range t.Stops[anchorIndex+1:] {
		// Sectional slack on the preceding leg eats into the delay
		// before the train arrives here.
		carriedSecs -= previous.RecoverySecs
		if carriedSecs < 0 {
			carriedSecs = 0
		}
		previous = stop

		// Real data always wins over synthetic projection.
		if stop.HasForecast() {
			stop.adoptForecast()
			carriedSecs = stop.DelayMins * 60

			continue
		}

		if stop.Kind == timetable.StopKindPass {
			stop.PredictedPass = stop.TimetabledPass.AddSeconds(carriedSecs)
			stop.DelayMins = carriedSecs / 60

			continue
		}

		if stop.TimetabledArrival.Valid {
			stop.PredictedArrival = stop.TimetabledArrival.AddSeconds(carriedSecs)
		}

		if stop.TimetabledArrival.Valid && stop.TimetabledDeparture.Valid {
			carriedSecs = t.trimDwell(stop, carriedSecs)
		}

		stop.DelayMins = carriedSecs / 60
		carriedSecs = stop.DelayMins * 60
	}
}

// trimDwell shortens the stop's booked dwell down to its late-dwell
// floor to recover delay, never predicting a departure ahead of the
// timetable. Returns the delay in seconds carried to the next leg.
func (t *ActiveTrain) trimDwell(stop *ActiveStop, carriedSecs int) int {
	arrivalSecs := stop.TimetabledArrival.Seconds()
	departureSecs := stop.TimetabledDeparture.Seconds()

	dwellSecs := departureSecs - arrivalSecs
	if dwellSecs < 0 {
		// Dwell spanning midnight.
		dwellSecs += 24 * 60 * 60
	}

	recoverableSecs := dwellSecs - stop.LateDwellSecs
	if recoverableSecs < 0 {
		recoverableSecs = 0
	}

	recoveredSecs := carriedSecs
	if recoverableSecs < recoveredSecs {
		recoveredSecs = recoverableSecs
	}

	predictedDepartureSecs := arrivalSecs + carriedSecs + (dwellSecs - recoveredSecs)
	if predictedDepartureSecs < arrivalSecs+dwellSecs {
		// Clamped to the booked departure, so whatever delay remained
		// is fully absorbed here.
		predictedDepartureSecs = arrivalSecs + dwellSecs
		recoveredSecs = carriedSecs
	}

	stop.PredictedDeparture = cif.TimeFromSeconds(predictedDepartureSecs)

	remainingSecs := carriedSecs - recoveredSecs
	if remainingSecs < 0 {
		remainingSecs = 0
	}

	return remainingSecs
}

// synthesizePredicted fills in any predicted field the forecast layer
// did not supply: a confirmed actual is adopted as is, otherwise the
// timetabled time shifted by the current delay. Keeps the anchor's own
// prediction consistent with what was just observed there.
func (s *ActiveStop) synthesizePredicted(delaySecs int) {
	if !s.ForecastArrival.Valid {
		switch {
		case s.ActualArrival.Valid:
			s.PredictedArrival = s.ActualArrival
		case s.TimetabledArrival.Valid && delaySecs > 0:
			s.PredictedArrival = s.TimetabledArrival.AddSeconds(delaySecs)
		}
	}

	if !s.ForecastDeparture.Valid {
		switch {
		case s.ActualDeparture.Valid:
			s.PredictedDeparture = s.ActualDeparture
		case s.TimetabledDeparture.Valid && delaySecs > 0:
			s.PredictedDeparture = s.TimetabledDeparture.AddSeconds(delaySecs)
		}
	}

	if !s.ForecastPass.Valid {
		switch {
		case s.ActualPass.Valid:
			s.PredictedPass = s.ActualPass
		case s.TimetabledPass.Valid && delaySecs > 0:
			s.PredictedPass = s.TimetabledPass.AddSeconds(delaySecs)
		}
	}
}

// adoptForecast copies whichever forecast times are populated straight
// into the predicted layer.
func (s *ActiveStop) adoptForecast() {
	if s.ForecastArrival.Valid {
		s.PredictedArrival = s.ForecastArrival
	}
	if s.ForecastDeparture.Valid {
		s.PredictedDeparture = s.ForecastDeparture
	}
	if s.ForecastPass.Valid {
		s.PredictedPass = s.ForecastPass
	}
}
