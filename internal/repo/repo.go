// Package repo implements the offline-first synchronization core: a
// repository per entity kind that reconciles the remote service with the
// local cache.
//
// Policy, in one paragraph: reads try the network first and mirror every
// successful result into the cache (write-through); when the network is
// unavailable the read is satisfied from the last-known-good cache
// snapshot instead of failing (read-fallback). Writes are
// remote-authoritative: they either fully succeed against the server or
// report a typed failure, and the cache is only touched after the server
// has accepted the write. Only transport-level errors trigger fallback;
// validation and auth errors always propagate because they indicate a
// caller bug, not unavailability.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/gatherhq/gather/internal/api"
)

var (
	// ErrNetworkDisabled is returned by write operations (and by reads
	// with no cache) when the repository was constructed with
	// NetworkEnabled false.
	ErrNetworkDisabled = errors.New("network disabled")

	// ErrCacheDisabled is returned when a fallback would be needed but
	// the repository was constructed with CacheEnabled false.
	ErrCacheDisabled = errors.New("cache disabled")
)

// Options toggles the two sources at construction. Both default to true;
// disabling the network makes reads cache-only and writes fail, disabling
// the cache turns off fallback and write-through.
type Options struct {
	CacheEnabled   bool
	NetworkEnabled bool
}

// DefaultOptions enables both sources.
func DefaultOptions() Options {
	return Options{CacheEnabled: true, NetworkEnabled: true}
}

// Remote is the slice of the API client a repository drives.
type Remote[E any] interface {
	List(ctx context.Context, ownerKey string) ([]E, error)
	Get(ctx context.Context, id string) (*E, error)
	Create(ctx context.Context, e *E) (*E, error)
	Update(ctx context.Context, e *E) (*E, error)
	Delete(ctx context.Context, id string) error
}

// Cache is the slice of the local store a repository drives. ByID returns
// (nil, nil) on a miss.
type Cache[E any] interface {
	Upsert(ctx context.Context, e *E) error
	ForOwner(ctx context.Context, ownerKey string) ([]E, error)
	ByID(ctx context.Context, id string) (*E, error)
	Delete(ctx context.Context, id string) error
}

// Notifier receives repository activity for the monitor server. A nil
// notifier is fine.
type Notifier interface {
	Notify(ev Activity)
}

// Activity describes one repository operation for observers.
type Activity struct {
	Entity    string `json:"entity"`
	Action    string `json:"action"` // listed, fetched, created, updated, deleted
	ID        string `json:"id,omitempty"`
	Count     int    `json:"count,omitempty"`
	FromCache bool   `json:"from_cache,omitempty"`
}

// Repository reconciles one entity kind across both sources.
type Repository[E any] struct {
	entity string
	remote Remote[E]
	cache  Cache[E]
	opts   Options
	logger *log.Logger
	notify Notifier

	// id extracts the durable identifier.
	id func(*E) string
	// setID stamps the identifier before an update call.
	setID func(*E, string)
	// less is the entity's natural order.
	less func(a, b *E) bool
	// sameKey reports natural-key equality for Save; nil means the
	// entity has no natural key beyond its id.
	sameKey func(a, b *E) bool
}

// Config assembles a Repository. The entity name only feeds logs and
// notifications.
type Config[E any] struct {
	Entity   string
	Remote   Remote[E]
	Cache    Cache[E]
	Options  Options
	Logger   *log.Logger
	Notifier Notifier

	ID      func(*E) string
	SetID   func(*E, string)
	Less    func(a, b *E) bool
	SameKey func(a, b *E) bool
}

// New builds a repository from its config.
func New[E any](cfg Config[E]) *Repository[E] {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[repo] ", log.LstdFlags)
	}
	return &Repository[E]{
		entity:  cfg.Entity,
		remote:  cfg.Remote,
		cache:   cfg.Cache,
		opts:    cfg.Options,
		logger:  logger,
		notify:  cfg.Notifier,
		id:      cfg.ID,
		setID:   cfg.SetID,
		less:    cfg.Less,
		sameKey: cfg.SameKey,
	}
}

// List returns all entities for ownerKey, remote first with cache
// fallback. The caller never sees a transport error, only a possibly
// stale result; with no cached snapshot the error does propagate.
func (r *Repository[E]) List(ctx context.Context, ownerKey string) ([]E, error) {
	if !r.opts.NetworkEnabled {
		return r.listFromCache(ctx, ownerKey, true)
	}

	items, err := r.remote.List(ctx, ownerKey)
	if err != nil {
		if !api.Recoverable(err) {
			return nil, err
		}
		r.logger.Printf("%s list failed, falling back to cache: %v", r.entity, err)
		return r.listFromCache(ctx, ownerKey, false)
	}

	r.mirror(ctx, items)
	r.sortInPlace(items)
	r.publish(Activity{Entity: r.entity, Action: "listed", Count: len(items)})
	return items, nil
}

// listFromCache serves a read from the local snapshot. required
// distinguishes "network disabled by configuration" from "fallback".
func (r *Repository[E]) listFromCache(ctx context.Context, ownerKey string, required bool) ([]E, error) {
	if !r.opts.CacheEnabled {
		if required {
			return nil, fmt.Errorf("%s list: %w", r.entity, ErrNetworkDisabled)
		}
		return nil, fmt.Errorf("%s list: %w", r.entity, ErrCacheDisabled)
	}
	items, err := r.cache.ForOwner(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("%s cache read failed: %w", r.entity, err)
	}
	r.sortInPlace(items)
	r.publish(Activity{Entity: r.entity, Action: "listed", Count: len(items), FromCache: true})
	return items, nil
}

// Get returns one entity by id. A remote 404 means the entity was deleted
// elsewhere and returns (nil, nil) without consulting the cache; the
// cached copy is left in place for the fallback path, per the rule that
// only explicit deletes remove cache entries. Transport failures fall
// back to the cache.
func (r *Repository[E]) Get(ctx context.Context, id string) (*E, error) {
	if !r.opts.NetworkEnabled {
		return r.getFromCache(ctx, id)
	}

	item, err := r.remote.Get(ctx, id)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, nil
		}
		if !api.Recoverable(err) {
			return nil, err
		}
		r.logger.Printf("%s get %s failed, falling back to cache: %v", r.entity, id, err)
		return r.getFromCache(ctx, id)
	}

	if r.opts.CacheEnabled {
		if err := r.cache.Upsert(ctx, item); err != nil {
			r.logger.Printf("WARNING: failed to mirror %s %s: %v", r.entity, id, err)
		}
	}
	r.publish(Activity{Entity: r.entity, Action: "fetched", ID: id})
	return item, nil
}

func (r *Repository[E]) getFromCache(ctx context.Context, id string) (*E, error) {
	if !r.opts.CacheEnabled {
		return nil, fmt.Errorf("%s get %s: %w", r.entity, id, ErrCacheDisabled)
	}
	item, err := r.cache.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s cache read failed: %w", r.entity, err)
	}
	return item, nil
}

// Create sends the entity to the server, which assigns the durable id,
// then mirrors it into the cache. On remote failure the operation fails
// outright; there is no optimistic local-only creation, because a
// fabricated id would never reconcile with the server's id space.
func (r *Repository[E]) Create(ctx context.Context, e *E) (*E, error) {
	if !r.opts.NetworkEnabled {
		return nil, fmt.Errorf("%s create: %w", r.entity, ErrNetworkDisabled)
	}

	created, err := r.remote.Create(ctx, e)
	if err != nil {
		return nil, err
	}

	if r.opts.CacheEnabled {
		if err := r.cache.Upsert(ctx, created); err != nil {
			r.logger.Printf("WARNING: failed to mirror created %s: %v", r.entity, err)
		}
	}
	r.publish(Activity{Entity: r.entity, Action: "created", ID: r.id(created)})
	return created, nil
}

// Save upserts by natural key: when an existing record holds the same
// key, its id is adopted and the record updated; otherwise a new record
// is created. Saving the same value twice therefore produces one record,
// not two.
func (r *Repository[E]) Save(ctx context.Context, ownerKey string, e *E) (*E, error) {
	if !r.opts.NetworkEnabled {
		return nil, fmt.Errorf("%s save: %w", r.entity, ErrNetworkDisabled)
	}

	existing, err := r.findExisting(ctx, ownerKey, e)
	if err != nil {
		return nil, err
	}

	var saved *E
	if existing != nil {
		r.setID(e, r.id(existing))
		saved, err = r.remote.Update(ctx, e)
		if err != nil {
			return nil, err
		}
		r.publish(Activity{Entity: r.entity, Action: "updated", ID: r.id(saved)})
	} else {
		saved, err = r.remote.Create(ctx, e)
		if err != nil {
			return nil, err
		}
		r.publish(Activity{Entity: r.entity, Action: "created", ID: r.id(saved)})
	}

	if r.opts.CacheEnabled {
		if err := r.cache.Upsert(ctx, saved); err != nil {
			r.logger.Printf("WARNING: failed to mirror saved %s: %v", r.entity, err)
		}
	}
	return saved, nil
}

// findExisting resolves the natural-key match for Save. The remote list
// is authoritative; on a recoverable failure the cached snapshot decides.
func (r *Repository[E]) findExisting(ctx context.Context, ownerKey string, e *E) (*E, error) {
	if r.sameKey == nil {
		// No natural key: an entity with an id is an update target.
		if id := r.id(e); id != "" {
			return e, nil
		}
		return nil, nil
	}

	items, err := r.remote.List(ctx, ownerKey)
	if err != nil {
		if !api.Recoverable(err) {
			return nil, err
		}
		if !r.opts.CacheEnabled {
			return nil, err
		}
		r.logger.Printf("%s save: remote lookup failed, checking cache: %v", r.entity, err)
		items, err = r.cache.ForOwner(ctx, ownerKey)
		if err != nil {
			return nil, fmt.Errorf("%s cache read failed: %w", r.entity, err)
		}
	}

	for i := range items {
		if r.sameKey(&items[i], e) {
			return &items[i], nil
		}
	}
	return nil, nil
}

// Delete removes the entity remotely, then from the cache. If the remote
// delete fails the cache entry is left untouched; there is no speculative
// local deletion.
func (r *Repository[E]) Delete(ctx context.Context, id string) error {
	if !r.opts.NetworkEnabled {
		return fmt.Errorf("%s delete: %w", r.entity, ErrNetworkDisabled)
	}

	if err := r.remote.Delete(ctx, id); err != nil {
		return err
	}

	if r.opts.CacheEnabled {
		if err := r.cache.Delete(ctx, id); err != nil {
			r.logger.Printf("WARNING: failed to remove %s %s from cache: %v", r.entity, id, err)
		}
	}
	r.publish(Activity{Entity: r.entity, Action: "deleted", ID: id})
	return nil
}

// mirror writes a remote result set through to the cache.
func (r *Repository[E]) mirror(ctx context.Context, items []E) {
	if !r.opts.CacheEnabled {
		return
	}
	for i := range items {
		if err := r.cache.Upsert(ctx, &items[i]); err != nil {
			r.logger.Printf("WARNING: failed to mirror %s %s: %v", r.entity, r.id(&items[i]), err)
		}
	}
}

func (r *Repository[E]) sortInPlace(items []E) {
	sort.SliceStable(items, func(i, j int) bool {
		return r.less(&items[i], &items[j])
	})
}

func (r *Repository[E]) publish(ev Activity) {
	if r.notify != nil {
		r.notify.Notify(ev)
	}
}
