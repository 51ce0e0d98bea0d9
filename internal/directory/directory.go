// Package directory implements iface.ActorDirectory against Redis, the
// role the teacher's pkg/discovery (consul-backed node registry) plays for
// game nodes: a shared record of where a thing currently lives, kept
// current by Add/Remove and fanned out to watchers. Here the "thing" is an
// actor, the record is its current Address plus the restart generation and
// death cause the submitter needs for the staleness and death-info rules,
// and watchers learn about changes over a Redis pubsub channel instead of
// consul's blocking watch.
package directory

import (
	"context"
	"fmt"
	"time"

	"actorsub/internal/errs"
	"actorsub/internal/iface"
	"actorsub/pkg/glog"
	libevent "actorsub/pkg/lib/event"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Placer decides which worker process a newly (re)scheduled actor should
// run on. Production deployments inject the real scheduler here; it is
// kept as an injected seam rather than hard-coded so the directory itself
// stays a pure record-keeping layer over Redis.
type Placer func(ctx context.Context, spec iface.TaskSpec) (iface.Address, error)

// Event is published to local watchers whenever an actor record changes.
type Event struct {
	ActorID    iface.ActorID
	Generation uint64
	Address    iface.Address
	Dead       bool
	DeathCause *iface.DeathCause
}

const recordTTL = 0 // actor records live until explicitly removed

type record struct {
	Generation uint64            `msgpack:"generation"`
	Address    iface.Address     `msgpack:"address"`
	Dead       bool              `msgpack:"dead"`
	DeathCause *iface.DeathCause `msgpack:"deathCause,omitempty"`
}

// Directory is the Redis-backed iface.ActorDirectory.
type Directory struct {
	rdb     *redis.Client
	placer  Placer
	prefix  string
	channel string

	events *libevent.Listener[Event]
}

// Config points the directory at a Redis instance.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New builds a Directory. placer supplies the address a newly scheduled
// actor should run on; pass nil to use a placer that always fails, so
// CreateActor and RestartForLineage both fail and only ReportOutOfScope
// does useful work.
func New(cfg Config, placer Placer) *Directory {
	if placer == nil {
		placer = func(context.Context, iface.TaskSpec) (iface.Address, error) {
			return iface.Address{}, errs.ErrDirectoryUnavailable(fmt.Errorf("no placer configured"))
		}
	}
	d := &Directory{
		rdb:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		placer:  placer,
		prefix:  "actorsub:actor:",
		channel: "actorsub:actor-events",
		events:  libevent.NewListener[Event](),
	}
	go d.subscribeLoop()
	return d
}

// Watch registers cb to be called on every actor record change this
// process observes over the shared pubsub channel.
func (d *Directory) Watch(cb func(Event)) {
	d.events.Register(cb)
}

func (d *Directory) key(actorID iface.ActorID) string {
	return d.prefix + string(actorID)
}

func (d *Directory) subscribeLoop() {
	sub := d.rdb.Subscribe(context.Background(), d.channel)
	ch := sub.Channel()
	for msg := range ch {
		var evt Event
		if err := msgpack.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			glog.Error("directory: malformed pubsub event", zap.Error(err))
			continue
		}
		d.events.Notify(evt)
	}
}

func (d *Directory) publish(ctx context.Context, evt Event) {
	data, err := msgpack.Marshal(&evt)
	if err != nil {
		glog.Error("directory: encode event failed", zap.Error(err))
		return
	}
	if err := d.rdb.Publish(ctx, d.channel, data).Err(); err != nil {
		glog.Error("directory: publish event failed", zap.Error(err))
	}
}

func (d *Directory) writeRecord(ctx context.Context, actorID iface.ActorID, rec record) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return errs.ErrDirectoryUnavailable(err)
	}
	if err := d.rdb.Set(ctx, d.key(actorID), data, recordTTL).Err(); err != nil {
		return errs.ErrDirectoryUnavailable(err)
	}
	return nil
}

// CreateActor schedules a brand-new actor via Placer and records it at
// generation 1 (the first ALIVE generation; PENDING_CREATION has no
// address yet and is never written to Redis).
func (d *Directory) CreateActor(spec iface.TaskSpec, done func(iface.CreateActorResult)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		addr, err := d.placer(ctx, spec)
		if err != nil {
			done(iface.CreateActorResult{Err: errs.ErrCreateActorFailed(string(spec.ActorID()), err)})
			return
		}

		rec := record{Generation: 1, Address: addr}
		if err := d.writeRecord(ctx, spec.ActorID(), rec); err != nil {
			done(iface.CreateActorResult{Err: err})
			return
		}
		d.publish(ctx, Event{ActorID: spec.ActorID(), Generation: 1, Address: addr})
		done(iface.CreateActorResult{Address: addr})
	}()
}

// RestartForLineage reschedules an actor whose owner wants it reconstructed
// for lineage purposes rather than treated as permanently dead. It bumps
// the stored generation past whatever the caller last observed so
// ConnectActor's staleness check accepts the new address.
func (d *Directory) RestartForLineage(actorID iface.ActorID, generation uint64, done func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		addr, err := d.placer(ctx, iface.NewActorCreationTaskSpec("", actorID, "", nil))
		if err != nil {
			done(errs.ErrRestartForLineageFailed(string(actorID), err))
			return
		}

		nextGen := generation + 1
		rec := record{Generation: nextGen, Address: addr}
		if err := d.writeRecord(ctx, actorID, rec); err != nil {
			done(err)
			return
		}
		d.publish(ctx, Event{ActorID: actorID, Generation: nextGen, Address: addr})
		done(nil)
	}()
}

// ReportOutOfScope tells the directory the actor handle is no longer
// reachable from anywhere and its record can be torn down.
func (d *Directory) ReportOutOfScope(actorID iface.ActorID, generation uint64, done func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cause := &iface.DeathCause{Kind: iface.DeathCauseActorError, Message: "handle out of scope"}
		rec := record{Generation: generation, Dead: true, DeathCause: cause}
		if err := d.writeRecord(ctx, actorID, rec); err != nil {
			done(err)
			return
		}
		d.publish(ctx, Event{ActorID: actorID, Generation: generation, Dead: true, DeathCause: cause})
		if err := d.rdb.Del(ctx, d.key(actorID)).Err(); err != nil {
			glog.Error("directory: cleanup record after out-of-scope failed", zap.Error(err))
		}
		done(nil)
	}()
}

// Close releases the underlying Redis connection.
func (d *Directory) Close() error {
	return d.rdb.Close()
}
