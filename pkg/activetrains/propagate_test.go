package activetrains

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railwatch/railwatch/pkg/cif"
	"github.com/railwatch/railwatch/pkg/timetable"
)

func at(hour int, minute int) cif.Time {
	return cif.Time{Hour: hour, Minute: minute, Valid: true}
}

func atSecs(hour int, minute int, second int) cif.Time {
	return cif.Time{Hour: hour, Minute: minute, Second: second, Valid: true}
}

// expressTrain is an origin, a timing point, a dwell stop and a
// terminus, with a two minute booked dwell at the calling stop.
func expressTrain() *ActiveTrain {
	variant := &timetable.ScheduleVariant{
		TrainUID: "P12345",
		Headcode: "1A23",
		CallingPoints: []timetable.CallingPoint{
			{Sequence: 1, Tiploc: "EUSTON", Kind: timetable.StopKindOrigin, ScheduledDeparture: at(9, 30)},
			{Sequence: 2, Tiploc: "WLSDNJ", Kind: timetable.StopKindPass, ScheduledPass: at(9, 50)},
			{Sequence: 3, Tiploc: "MKNSCEN", Kind: timetable.StopKindCall, ScheduledArrival: at(10, 0), ScheduledDeparture: at(10, 2)},
			{Sequence: 4, Tiploc: "RUGBY", Kind: timetable.StopKindTerminating, ScheduledArrival: at(10, 20)},
		},
	}

	return NewActiveTrain(variant, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), LateDwellConfig{})
}

func TestPropagateTrimsDwellAgainstFloor(t *testing.T) {
	train := expressTrain()

	// Eight minutes late leaving the origin, no sectional slack.
	origin := train.Stops[0]
	origin.ForecastDeparture = at(9, 38)
	origin.DelayMins = 8

	train.propagateFrom(0)

	assert.Equal(t, "09:38:00", origin.PredictedDeparture.String())

	pass := train.Stops[1]
	assert.Equal(t, "09:58:00", pass.PredictedPass.String())
	assert.Equal(t, 8, pass.DelayMins)

	// Two minutes of booked dwell against a 30s floor recovers 90s:
	// arrive 8 late, leave 10:08:30, carry 6 whole minutes onward.
	dwell := train.Stops[2]
	assert.Equal(t, "10:08:00", dwell.PredictedArrival.String())
	assert.Equal(t, "10:08:30", dwell.PredictedDeparture.String())
	assert.Equal(t, 6, dwell.DelayMins)

	terminus := train.Stops[3]
	assert.Equal(t, "10:26:00", terminus.PredictedArrival.String())
	assert.Equal(t, 6, terminus.DelayMins)
}

func TestPropagatePassStopCarriesDelayUnchanged(t *testing.T) {
	train := expressTrain()

	// Forecast three minutes late through the timing point.
	pass := train.Stops[1]
	pass.ForecastPass = at(9, 53)
	pass.DelayMins = 3

	train.propagateFrom(1)

	assert.Equal(t, "09:53:00", pass.PredictedPass.String())

	// The next stop's arrival is synthesized exactly three minutes
	// down, the pass itself having offered no recovery.
	dwell := train.Stops[2]
	assert.Equal(t, "10:03:00", dwell.PredictedArrival.String())
}

func TestPropagateZeroDelayLeavesDownstreamUntouched(t *testing.T) {
	train := expressTrain()

	origin := train.Stops[0]
	origin.ForecastDeparture = at(9, 30)
	origin.DelayMins = 0

	train.propagateFrom(0)

	for _, stop := range train.Stops[1:] {
		assert.Equal(t, 0, stop.DelayMins)
	}
	assert.Equal(t, "10:00:00", train.Stops[2].PredictedArrival.String())
	assert.Equal(t, "10:02:00", train.Stops[2].PredictedDeparture.String())
	assert.Equal(t, "10:20:00", train.Stops[3].PredictedArrival.String())
}

func TestPropagateSmallDelayFullyRecoveredByDwell(t *testing.T) {
	train := expressTrain()

	origin := train.Stops[0]
	origin.ForecastDeparture = at(9, 31)
	origin.DelayMins = 1

	train.propagateFrom(0)

	// One minute against 90s of recoverable dwell disappears entirely,
	// with the departure never predicted ahead of the timetable.
	dwell := train.Stops[2]
	assert.Equal(t, "10:01:00", dwell.PredictedArrival.String())
	assert.Equal(t, "10:02:00", dwell.PredictedDeparture.String())
	assert.Equal(t, 0, dwell.DelayMins)

	assert.Equal(t, "10:20:00", train.Stops[3].PredictedArrival.String())
	assert.Equal(t, 0, train.Stops[3].DelayMins)
}

func TestPropagateNeverPredictsEarlyDeparture(t *testing.T) {
	for delayMins := 0; delayMins <= 20; delayMins += 1 {
		train := expressTrain()
		train.Stops[0].DelayMins = delayMins

		train.propagateFrom(0)

		for _, stop := range train.Stops {
			if !stop.TimetabledDeparture.Valid || !stop.PredictedDeparture.Valid {
				continue
			}

			assert.GreaterOrEqual(t,
				stop.PredictedDeparture.Seconds(), stop.TimetabledDeparture.Seconds(),
				"delay %d at %s", delayMins, stop.Tiploc,
			)
		}
	}
}

func TestPropagateForecastOverridesSynthesis(t *testing.T) {
	train := expressTrain()

	origin := train.Stops[0]
	origin.ForecastDeparture = at(9, 38)
	origin.DelayMins = 8

	// The downstream feed already has its own view of the dwell stop.
	dwell := train.Stops[2]
	dwell.ForecastArrival = at(10, 4)
	dwell.ForecastDeparture = atSecs(10, 5, 0)
	dwell.DelayMins = 3

	train.propagateFrom(0)

	// Forecast adopted verbatim, not synthesized from the carried
	// eight minutes, and the carried delay resets to the stop's own.
	assert.Equal(t, "10:04:00", dwell.PredictedArrival.String())
	assert.Equal(t, "10:05:00", dwell.PredictedDeparture.String())
	assert.Equal(t, 3, dwell.DelayMins)

	assert.Equal(t, "10:23:00", train.Stops[3].PredictedArrival.String())
}

func TestPropagateAnchorAdoptsObservationIntoPrediction(t *testing.T) {
	train := expressTrain()

	// Observed eleven minutes late into the dwell stop, no forecast.
	dwell := train.Stops[2]
	dwell.ActualArrival = at(10, 11)
	dwell.DelayMins = 11

	train.propagateFrom(2)

	assert.Equal(t, "10:11:00", dwell.PredictedArrival.String())
	assert.GreaterOrEqual(t, dwell.PredictedArrival.Seconds(), dwell.ActualArrival.Seconds())

	// The unobserved departure shifts by the anchor delay.
	assert.Equal(t, "10:13:00", dwell.PredictedDeparture.String())

	assert.Equal(t, "10:31:00", train.Stops[3].PredictedArrival.String())
	assert.Equal(t, 11, train.Stops[3].DelayMins)
}

func TestPropagateUnknownAnchorIsNoOp(t *testing.T) {
	train := expressTrain()

	train.propagateFrom(-1)
	train.propagateFrom(99)

	assert.Equal(t, "10:02:00", train.Stops[2].PredictedDeparture.String())
}

func TestPropagateSectionalSlackReducesDelay(t *testing.T) {
	train := expressTrain()

	origin := train.Stops[0]
	origin.DelayMins = 2
	origin.RecoverySecs = 60

	train.propagateFrom(0)

	// One minute of slack on the first leg leaves one minute at the
	// timing point.
	require.Equal(t, 1, train.Stops[1].DelayMins)
	assert.Equal(t, "09:51:00", train.Stops[1].PredictedPass.String())
}
