package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/runledger/pkg/channels/gochannel"
	"github.com/dukex/runledger/pkg/channels/kafka"
	"github.com/dukex/runledger/pkg/eventbus"
)

// WorkerConsumerGroup is shared by every worker so each queued execution runs once.
const WorkerConsumerGroup = "runledger-workers"

// BusConfig selects the transport of the execution queue and the status stream.
type BusConfig struct {
	Provider string // gochannel or kafka
	Brokers  string // comma separated kafka brokers
}

// NewEventBus creates the execution queue bus.
func NewEventBus(config BusConfig, logger *slog.Logger) eventbus.EventBus {
	switch config.Provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create GoChannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), kafka.ParseBrokers(config.Brokers), WorkerConsumerGroup)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + config.Provider)
	}
}

// NewStatusBus creates the node status stream. On kafka every process reads
// every status event, so no consumer group is used.
func NewStatusBus(config BusConfig, issuer eventbus.TokenIssuer, logger *slog.Logger) *eventbus.StatusBus {
	switch config.Provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create GoChannel pub/sub: %w", err))
		}

		return eventbus.NewStatusBus(pub, sub, issuer, logger)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), kafka.ParseBrokers(config.Brokers), "")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewStatusBus(pub, sub, issuer, logger)
	default:
		panic("Unsupported event bus provider: " + config.Provider)
	}
}

// NewTokenIssuer returns a Redis backed issuer when redisURL is set, and an
// HMAC issuer otherwise.
func NewTokenIssuer(redisURL, secret string, ttl time.Duration) (eventbus.TokenIssuer, error) {
	if redisURL != "" {
		issuer, err := eventbus.NewRedisIssuer(redisURL, ttl)
		if err != nil {
			return nil, err
		}

		return issuer, nil
	}

	issuer, err := eventbus.NewHMACIssuer(secret, ttl)
	if err != nil {
		return nil, err
	}

	return issuer, nil
}
