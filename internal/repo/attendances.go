package repo

import (
	"context"
	"log"

	"github.com/gatherhq/gather/internal/api"
	"github.com/gatherhq/gather/internal/cache"
	"github.com/gatherhq/gather/internal/types"
)

// attendanceRemote adapts the API client to Remote[types.Attendance].
// The owner key for attendances is the event id.
type attendanceRemote struct {
	client *api.Client
}

func (r attendanceRemote) List(ctx context.Context, ownerKey string) ([]types.Attendance, error) {
	return r.client.ListAttendances(ctx, ownerKey)
}

func (r attendanceRemote) Get(ctx context.Context, id string) (*types.Attendance, error) {
	return r.client.GetAttendance(ctx, id)
}

func (r attendanceRemote) Create(ctx context.Context, a *types.Attendance) (*types.Attendance, error) {
	return r.client.CreateAttendance(ctx, a.EventID, a.Status)
}

func (r attendanceRemote) Update(ctx context.Context, a *types.Attendance) (*types.Attendance, error) {
	return r.client.UpdateAttendance(ctx, a)
}

func (r attendanceRemote) Delete(ctx context.Context, id string) error {
	return r.client.DeleteAttendance(ctx, id)
}

// attendanceCache adapts the SQLite store to Cache[types.Attendance].
type attendanceCache struct {
	store *cache.Store
}

func (c attendanceCache) Upsert(ctx context.Context, a *types.Attendance) error {
	return c.store.UpsertAttendance(ctx, a)
}

func (c attendanceCache) ForOwner(ctx context.Context, ownerKey string) ([]types.Attendance, error) {
	return c.store.AttendancesForEvent(ctx, ownerKey)
}

func (c attendanceCache) ByID(ctx context.Context, id string) (*types.Attendance, error) {
	return c.store.AttendanceByID(ctx, id)
}

func (c attendanceCache) Delete(ctx context.Context, id string) error {
	return c.store.DeleteAttendance(ctx, id)
}

// Attendances builds the attendance repository: most-recent-first order,
// natural key (event_id, user_id) so repeated votes update in place.
func Attendances(client *api.Client, store *cache.Store, opts Options, logger *log.Logger, notifier Notifier) *Repository[types.Attendance] {
	return New(Config[types.Attendance]{
		Entity:   "attendances",
		Remote:   attendanceRemote{client: client},
		Cache:    attendanceCache{store: store},
		Options:  opts,
		Logger:   logger,
		Notifier: notifier,
		ID:       func(a *types.Attendance) string { return a.ID },
		SetID:    func(a *types.Attendance, id string) { a.ID = id },
		Less:     func(a, b *types.Attendance) bool { return a.Before(b) },
		SameKey:  func(a, b *types.Attendance) bool { return a.SameVoter(b) },
	})
}
