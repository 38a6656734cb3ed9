package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog/log"

	"github.com/railwatch/railwatch/pkg/redis_client"
)

// StompClient subscribes to one feed topic and republishes every
// message onto a redis queue for the batch consumers. Reconnects with
// exponential backoff when the broker drops the connection.
type StompClient struct {
	Address   string
	Username  string
	Password  string
	Topic     string
	QueueName string
}

func (s *StompClient) Run() {
	queue, err := redis_client.QueueConnection.OpenQueue(s.QueueName)
	if err != nil {
		log.Fatal().Err(err).Str("queue", s.QueueName).Msg("Failed to open queue")
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 2 * time.Minute

	for {
		err := backoff.RetryNotify(func() error {
			return s.consume(queue)
		}, policy, func(err error, next time.Duration) {
			log.Error().
				Err(err).
				Str("topic", s.Topic).
				Dur("retry", next).
				Msg("Feed connection lost, reconnecting")
		})
		if err != nil {
			log.Error().Err(err).Str("topic", s.Topic).Msg("Feed subscription ended")
		}

		policy.Reset()
	}
}

func (s *StompClient) consume(queue publisher) error {
	conn, err := stomp.Dial("tcp", s.Address,
		stomp.ConnOpt.Login(s.Username, s.Password),
		stomp.ConnOpt.HeartBeat(15*time.Second, 15*time.Second),
	)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	sub, err := conn.Subscribe(s.Topic, stomp.AckAuto)
	if err != nil {
		return err
	}

	log.Info().Str("topic", s.Topic).Msg("Subscribed to feed")

	for message := range sub.C {
		if message.Err != nil {
			return message.Err
		}

		if err := queue.PublishBytes(message.Body); err != nil {
			log.Error().Err(err).Str("queue", s.QueueName).Msg("Failed to queue feed message")
		}
	}

	return nil
}

type publisher interface {
	PublishBytes(payload ...[]byte) error
}
