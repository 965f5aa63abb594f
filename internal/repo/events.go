package repo

import (
	"context"
	"log"

	"github.com/gatherhq/gather/internal/api"
	"github.com/gatherhq/gather/internal/cache"
	"github.com/gatherhq/gather/internal/types"
)

// eventRemote adapts the API client to Remote[types.Event]. The owner key
// for events is the organizer id; empty means every visible event.
type eventRemote struct {
	client *api.Client
}

func (r eventRemote) List(ctx context.Context, ownerKey string) ([]types.Event, error) {
	return r.client.ListEvents(ctx, ownerKey)
}

func (r eventRemote) Get(ctx context.Context, id string) (*types.Event, error) {
	return r.client.GetEvent(ctx, id)
}

func (r eventRemote) Create(ctx context.Context, e *types.Event) (*types.Event, error) {
	in := &types.EventInput{
		Title:        e.Title,
		Description:  e.Description,
		Date:         e.Date,
		Location:     e.Location,
		IsAllDay:     e.IsAllDay,
		Tags:         e.Tags,
		MaxAttendees: e.MaxAttendees,
	}
	return r.client.CreateEvent(ctx, in)
}

func (r eventRemote) Update(ctx context.Context, e *types.Event) (*types.Event, error) {
	return r.client.UpdateEvent(ctx, e)
}

func (r eventRemote) Delete(ctx context.Context, id string) error {
	return r.client.DeleteEvent(ctx, id)
}

// eventCache adapts the SQLite store to Cache[types.Event].
type eventCache struct {
	store *cache.Store
}

func (c eventCache) Upsert(ctx context.Context, e *types.Event) error {
	return c.store.UpsertEvent(ctx, e)
}

func (c eventCache) ForOwner(ctx context.Context, ownerKey string) ([]types.Event, error) {
	return c.store.EventsForOrganizer(ctx, ownerKey)
}

func (c eventCache) ByID(ctx context.Context, id string) (*types.Event, error) {
	return c.store.EventByID(ctx, id)
}

func (c eventCache) Delete(ctx context.Context, id string) error {
	return c.store.DeleteEvent(ctx, id)
}

// Events builds the event repository: date-ascending order, no natural
// key beyond the id.
func Events(client *api.Client, store *cache.Store, opts Options, logger *log.Logger, notifier Notifier) *Repository[types.Event] {
	return New(Config[types.Event]{
		Entity:   "events",
		Remote:   eventRemote{client: client},
		Cache:    eventCache{store: store},
		Options:  opts,
		Logger:   logger,
		Notifier: notifier,
		ID:       func(e *types.Event) string { return e.ID },
		SetID:    func(e *types.Event, id string) { e.ID = id },
		Less:     func(a, b *types.Event) bool { return a.Before(b) },
	})
}
