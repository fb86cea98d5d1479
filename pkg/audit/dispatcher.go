package audit

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Entry is one audit record.
type Entry struct {
	Service  string
	Action   string
	EntityID string
	Data     map[string]interface{}
	At       time.Time
}

// Sink persists audit entries.
type Sink interface {
	Write(ctx context.Context, e *Entry) error
}

// writerActor drains entries into the sink one at a time, in arrival order.
type writerActor struct {
	sink   Sink
	logger *zap.Logger
}

func (a *writerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *Entry:
		wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := a.sink.Write(wctx, msg); err != nil {
			a.logger.Error("Failed to write audit entry",
				zap.String("action", msg.Action),
				zap.String("entity_id", msg.EntityID),
				zap.Error(err))
		}

	case *actor.Started:
		a.logger.Info("Audit actor started")

	case *actor.Stopped:
		a.logger.Info("Audit actor stopped")
	}
}

// Dispatcher records audit entries off the request path.
type Dispatcher struct {
	system *actor.ActorSystem
	pid    *actor.PID
}

func NewDispatcher(sink Sink, logger *zap.Logger) *Dispatcher {
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return &writerActor{sink: sink, logger: logger}
	})

	return &Dispatcher{
		system: system,
		pid:    system.Root.Spawn(props),
	}
}

func (d *Dispatcher) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	d.system.Root.Send(d.pid, &e)
}

// Close stops the actor after the entries already queued are written.
func (d *Dispatcher) Close() error {
	return d.system.Root.PoisonFuture(d.pid).Wait()
}
