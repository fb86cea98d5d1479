package service

import (
	"context"
	"time"

	"github.com/example/takeout/pkg/audit"
	"github.com/example/takeout/pkg/messaging"
)

// Cache is the subset of the Redis repository the services use.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type Auditor interface {
	Record(e audit.Entry)
}

type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, evt *messaging.OrderPlaced) error
}

type IDGenerator interface {
	NextID() int64
}

const serviceName = "takeout"

// nopAuditor drops entries when no audit sink is configured.
type nopAuditor struct{}

func (nopAuditor) Record(audit.Entry) {}
