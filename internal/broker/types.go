package broker

import (
	"context"
)

type Producer interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
	Close() error
	SetServiceName(name string)
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc receives the raw record; callers unmarshal their own
// payload type.
type HandlerFunc func(ctx context.Context, key, value []byte) error
