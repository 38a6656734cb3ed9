package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"

	"github.com/railwatch/railwatch/pkg/activetrains"
	"github.com/railwatch/railwatch/pkg/redis_client"
)

const numConsumers = 5
const batchSize = 200

const MovementQueueName = "movement-events"
const ForecastQueueName = "forecast-events"

// StartConsumers runs the background batch consumers that drain the
// feed queues into the correlator.
func StartConsumers(correlator *activetrains.Correlator, berths *BerthCache) {
	log.Info().Msg("Starting realtime consumers")

	movementQueue, err := redis_client.QueueConnection.OpenQueue(MovementQueueName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open movement queue")
	}
	if err := movementQueue.StartConsuming(numConsumers*batchSize, 1*time.Second); err != nil {
		log.Fatal().Err(err).Msg("Failed to start consuming movements")
	}

	forecastQueue, err := redis_client.QueueConnection.OpenQueue(ForecastQueueName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open forecast queue")
	}
	if err := forecastQueue.StartConsuming(numConsumers*batchSize, 1*time.Second); err != nil {
		log.Fatal().Err(err).Msg("Failed to start consuming forecasts")
	}

	for i := 0; i < numConsumers; i++ {
		name := fmt.Sprintf("movement-consumer-%d", i)
		if _, err := movementQueue.AddBatchConsumer(name, batchSize, 2*time.Second, &MovementConsumer{
			id:         i,
			correlator: correlator,
			berths:     berths,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to add movement consumer")
		}

		name = fmt.Sprintf("forecast-consumer-%d", i)
		if _, err := forecastQueue.AddBatchConsumer(name, batchSize, 2*time.Second, &ForecastConsumer{
			id:         i,
			correlator: correlator,
		}); err != nil {
			log.Fatal().Err(err).Msg("Failed to add forecast consumer")
		}
	}
}

type MovementConsumer struct {
	id         int
	correlator *activetrains.Correlator
	berths     *BerthCache
}

func (c *MovementConsumer) Consume(batch rmq.Deliveries) {
	for _, payload := range batch.Payloads() {
		var message movementMessage
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			log.Error().Err(err).Int("consumer", c.id).Msg("Undecodable movement message")

			continue
		}

		event := message.ToEvent()

		// Movements that name both a berth and a location teach us the
		// correlation later ambiguous events rely on.
		if event.Kind != activetrains.MovementStep {
			c.berths.Learn(event.ToBerth, event.Tiploc)
		}

		err := c.correlator.ApplyMovement(event)

		var ambiguous *activetrains.AmbiguousMatchError
		if errors.As(err, &ambiguous) {
			// Already surfaced with its candidates, nothing to retry.
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("headcode", event.Headcode).Msg("Failed to apply movement")
		}
	}

	if errs := batch.Ack(); len(errs) > 0 {
		for _, err := range errs {
			log.Error().Err(err).Msg("Failed to ack movement batch")
		}
	}
}

type ForecastConsumer struct {
	id         int
	correlator *activetrains.Correlator
}

func (c *ForecastConsumer) Consume(batch rmq.Deliveries) {
	for _, payload := range batch.Payloads() {
		var message forecastMessage
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			log.Error().Err(err).Int("consumer", c.id).Msg("Undecodable forecast message")

			continue
		}

		event := message.ToEvent()
		if err := c.correlator.ApplyForecast(event); err != nil {
			log.Error().Err(err).Str("trainuid", event.TrainUID).Msg("Failed to apply forecast")
		}
	}

	if errs := batch.Ack(); len(errs) > 0 {
		for _, err := range errs {
			log.Error().Err(err).Msg("Failed to ack forecast batch")
		}
	}
}
