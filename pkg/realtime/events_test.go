package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railwatch/railwatch/pkg/activetrains"
	"github.com/railwatch/railwatch/pkg/cif"
)

func TestMovementMessageToEvent(t *testing.T) {
	payload := []byte(`{
		"train_uid": "P12345",
		"headcode": "1A23",
		"tiploc": "MKNSCEN",
		"event_type": "DEPARTURE",
		"timestamp": 1718012520000,
		"from_berth": "0123",
		"to_berth": "0125"
	}`)

	var message movementMessage
	require.NoError(t, json.Unmarshal(payload, &message))

	event := message.ToEvent()
	assert.Equal(t, "P12345", event.TrainUID)
	assert.Equal(t, "1A23", event.Headcode)
	assert.Equal(t, "MKNSCEN", event.Tiploc)
	assert.Equal(t, activetrains.MovementDeparture, event.Kind)
	assert.Equal(t, time.UnixMilli(1718012520000), event.Timestamp)
	assert.Equal(t, "0123", event.FromBerth)
	assert.Equal(t, "0125", event.ToBerth)
}

func TestForecastMessageToEvent(t *testing.T) {
	payload := []byte(`{
		"train_uid": "P12345",
		"headcode": "1A23",
		"locations": [
			{"tiploc": "MKNSCEN", "forecast_arrival": "10:14", "forecast_departure": "10:15:30", "delay_minutes": 4, "platform": "4"},
			{"tiploc": "RUGBY", "forecast_pass": "10:40"}
		]
	}`)

	var message forecastMessage
	require.NoError(t, json.Unmarshal(payload, &message))

	event := message.ToEvent()
	require.Len(t, event.Locations, 2)

	first := event.Locations[0]
	assert.Equal(t, "MKNSCEN", first.Tiploc)
	assert.Equal(t, cif.Time{Hour: 10, Minute: 14, Valid: true}, first.ForecastArrival)
	assert.Equal(t, cif.Time{Hour: 10, Minute: 15, Second: 30, Valid: true}, first.ForecastDeparture)
	require.NotNil(t, first.DelayMins)
	assert.Equal(t, 4, *first.DelayMins)
	assert.Equal(t, "4", first.Platform)

	second := event.Locations[1]
	assert.False(t, second.ForecastArrival.Valid)
	assert.Equal(t, cif.Time{Hour: 10, Minute: 40, Valid: true}, second.ForecastPass)
	assert.Nil(t, second.DelayMins)
}

func TestParseClockRejectsMalformedValues(t *testing.T) {
	for _, raw := range []string{"", "10", "25:00", "10:61", "10:15:99", "ten:15"} {
		assert.False(t, parseClock(raw).Valid, raw)
	}
}
