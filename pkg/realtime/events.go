package realtime

import (
	"strconv"
	"strings"
	"time"

	"github.com/railwatch/railwatch/pkg/activetrains"
	"github.com/railwatch/railwatch/pkg/cif"
)

// movementMessage is the wire shape of one track occupancy observation
// as queued off the movement feed.
type movementMessage struct {
	TrainUID  string `json:"train_uid"`
	Headcode  string `json:"headcode"`
	Tiploc    string `json:"tiploc"`
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	FromBerth string `json:"from_berth"`
	ToBerth   string `json:"to_berth"`
}

func (m movementMessage) ToEvent() activetrains.MovementEvent {
	return activetrains.MovementEvent{
		TrainUID:  m.TrainUID,
		Headcode:  m.Headcode,
		Tiploc:    m.Tiploc,
		Timestamp: time.UnixMilli(m.Timestamp),
		Kind:      strings.ToLower(m.EventType),
		FromBerth: m.FromBerth,
		ToBerth:   m.ToBerth,
	}
}

// forecastMessage is the wire shape of one prediction feed update.
type forecastMessage struct {
	TrainUID  string                    `json:"train_uid"`
	Headcode  string                    `json:"headcode"`
	Locations []forecastLocationMessage `json:"locations"`
}

type forecastLocationMessage struct {
	Tiploc            string `json:"tiploc"`
	ForecastArrival   string `json:"forecast_arrival"`
	ForecastDeparture string `json:"forecast_departure"`
	ForecastPass      string `json:"forecast_pass"`
	DelayMinutes      *int   `json:"delay_minutes"`
	Platform          string `json:"platform"`
}

func (m forecastMessage) ToEvent() activetrains.ForecastEvent {
	event := activetrains.ForecastEvent{
		TrainUID: m.TrainUID,
		Headcode: m.Headcode,
	}

	for _, location := range m.Locations {
		event.Locations = append(event.Locations, activetrains.ForecastLocation{
			Tiploc:            location.Tiploc,
			ForecastArrival:   parseClock(location.ForecastArrival),
			ForecastDeparture: parseClock(location.ForecastDeparture),
			ForecastPass:      parseClock(location.ForecastPass),
			DelayMins:         location.DelayMinutes,
			Platform:          location.Platform,
		})
	}

	return event
}

// parseClock reads HH:MM or HH:MM:SS, returning an unset time for
// anything else.
func parseClock(raw string) cif.Time {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return cif.Time{}
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return cif.Time{}
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return cif.Time{}
	}

	second := 0
	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil || second < 0 || second > 59 {
			return cif.Time{}
		}
	}

	return cif.Time{Hour: hour, Minute: minute, Second: second, Valid: true}
}
