package broker

import (
	"context"

	"trackerbridge/internal/fhir"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload interface{}) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

type HandlerFunc func(ctx context.Context, envelope fhir.DocumentEnvelope) error
