package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memKV is a Storage without atomic updates, with failure injection.
type memKV struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
	sets   int
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.data[key] = value
	return nil
}

// fixedClock returns t0 and advances by step on every call.
func fixedClock(t0 time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	cur := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := cur
		cur = cur.Add(step)
		return now
	}
}

var (
	tasks12 = scope.Scope{ClientID: "12", Kind: scope.KindTasks}
	t0      = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T, storage kv.Storage, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock(t0, time.Second))}, opts...)
	return New(storage, tasks12, opts...)
}

// seed writes records directly to storage.
func seed(t *testing.T, m *memKV, records ...models.Record) {
	t.Helper()
	raw, err := Encode(records)
	require.NoError(t, err)
	m.data[tasks12.StorageKey()] = raw
}

func synced(localID, serverID int64, title, status string, created time.Time) models.Record {
	return models.Record{
		LocalID: localID, ServerID: models.Int64(serverID), Title: title, Status: status,
		CreatedAt: created, Pending: models.PendingNone,
	}
}

func stored(t *testing.T, m *memKV) []models.Record {
	t.Helper()
	records, dropped, err := Decode(m.data[tasks12.StorageKey()])
	require.NoError(t, err)
	require.Zero(t, dropped)
	return records
}

func TestAddOffline_RoundTrip(t *testing.T) {
	s := newTestStore(t, newMemKV())
	ctx := context.Background()

	got, err := s.AddOffline(ctx, models.Draft{Title: "A"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	list := s.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "A", list[0].Title)
	assert.Equal(t, models.PendingCreate, list[0].Pending)
	assert.Nil(t, list[0].ServerID)
	assert.Equal(t, t0, list[0].CreatedAt)
	assert.Equal(t, t0.UnixMilli(), list[0].LocalID)
}

func TestAddOffline_UniqueIDsUnderFrozenAndBackwardsClock(t *testing.T) {
	ctx := context.Background()

	frozen := New(newMemKV(), tasks12, WithClock(func() time.Time { return t0 }))
	backwards := New(newMemKV(), tasks12, WithClock(fixedClock(t0, -time.Millisecond)))

	for _, s := range []*Store{frozen, backwards} {
		seen := map[int64]bool{}
		for i := 0; i < 50; i++ {
			_, err := s.AddOffline(ctx, models.Draft{Title: fmt.Sprint(i)})
			require.NoError(t, err)
		}
		for _, r := range s.List(ctx) {
			require.False(t, seen[r.LocalID], "duplicate local id %d", r.LocalID)
			seen[r.LocalID] = true
		}
		require.Len(t, seen, 50)
	}
}

func TestAddOffline_IDAboveExistingRecords(t *testing.T) {
	m := newMemKV()
	future := t0.Add(time.Hour).UnixMilli()
	seed(t, m, models.Record{LocalID: future, Title: "from another device", CreatedAt: t0, Pending: models.PendingCreate})

	s := newTestStore(t, m)
	list, err := s.AddOffline(context.Background(), models.Draft{Title: "new"})
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.Equal(t, future+1, list[0].LocalID)
}

func TestList_HidesDeletedAndSortsNewestFirst(t *testing.T) {
	m := newMemKV()
	seed(t, m,
		synced(1, 1, "old", "todo", t0),
		synced(2, 2, "gone", "todo", t0.Add(3*time.Hour)),
		synced(3, 3, "newest", "todo", t0.Add(2*time.Hour)),
		models.Record{LocalID: 4, Title: "offline", CreatedAt: t0.Add(time.Hour), Pending: models.PendingCreate},
	)
	recs := stored(t, m)
	recs[1].Pending = models.PendingDelete
	seed(t, m, recs...)

	list := newTestStore(t, m).List(context.Background())

	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
	for _, r := range list {
		assert.NotEqual(t, models.PendingDelete, r.Pending)
	}
	assert.Equal(t, []string{"newest", "offline", "old"}, []string{list[0].Title, list[1].Title, list[2].Title})
}

func TestList_CorruptStorageIsEmpty(t *testing.T) {
	m := newMemKV()
	m.data[tasks12.StorageKey()] = `{not json`

	s := newTestStore(t, m)
	assert.Empty(t, s.List(context.Background()))

	list, err := s.AddOffline(context.Background(), models.Draft{Title: "recovered"})
	require.NoError(t, err, "a corrupt value is replaced, not an I/O failure")
	require.Len(t, list, 1)
	assert.Len(t, stored(t, m), 1)
}

func TestList_DropsMalformedEntries(t *testing.T) {
	m := newMemKV()
	m.data[tasks12.StorageKey()] = `[
		{"local_id": 1, "server_id": 1, "title": "ok", "created_at": "2026-01-01T00:00:00Z", "pending": "none"},
		{"local_id": "two", "title": "bad id"},
		{"local_id": 3, "title": "bad pending", "created_at": "2026-01-01T00:00:00Z", "pending": "maybe"},
		42
	]`

	list := newTestStore(t, m).List(context.Background())
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].Title)
}

func TestList_ReadErrorIsEmpty(t *testing.T) {
	m := newMemKV()
	m.getErr = errors.New("disk gone")

	s := newTestStore(t, m)
	assert.Empty(t, s.List(context.Background()))
	assert.Empty(t, s.PendingForSync(context.Background()))
}

func TestCacheServerSnapshot_KeepsOfflineCreates(t *testing.T) {
	s := newTestStore(t, newMemKV())
	ctx := context.Background()

	_, err := s.AddOffline(ctx, models.Draft{Title: "Buy milk", Priority: "low"})
	require.NoError(t, err)
	require.Len(t, s.List(ctx), 1)

	snapshot := []models.Record{{
		LocalID: 42, ServerID: models.Int64(42), Title: "Buy milk", Status: "todo", Priority: "low",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Pending: models.PendingNone,
	}}
	list, err := s.CacheServerSnapshot(ctx, snapshot)
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.Equal(t, models.PendingCreate, list[0].Pending)
	assert.Equal(t, models.PendingNone, list[1].Pending)
	assert.Equal(t, int64(42), *list[1].ServerID)
	assert.Len(t, s.List(ctx), 2)
}

func TestSetStatus(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	list, err := s.SetStatus(ctx, 7, "done")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.PendingUpdate, list[0].Pending)
	assert.Equal(t, "done", list[0].Status)

	// An offline create stays a create.
	added, err := s.AddOffline(ctx, models.Draft{Title: "new"})
	require.NoError(t, err)
	list, err = s.SetStatus(ctx, added[0].LocalID, "done")
	require.NoError(t, err)
	r, ok := s.Get(ctx, added[0].LocalID)
	require.True(t, ok)
	assert.Equal(t, models.PendingCreate, r.Pending)
	assert.Equal(t, "done", r.Status)
	assert.Len(t, list, 2)
}

func TestSetStatus_UnknownOrDeletedIsNoop(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	_, err := s.Remove(ctx, 7)
	require.NoError(t, err)
	setsBefore := m.sets

	list, err := s.SetStatus(ctx, 7, "done")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.SetStatus(ctx, 999, "done")
	require.NoError(t, err)
	assert.Equal(t, setsBefore, m.sets, "no-ops must not write")

	r, _ := s.Get(ctx, 7)
	assert.Equal(t, "todo", r.Status)
}

func TestUpdate_MergesDraft(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)

	list, err := s.Update(context.Background(), 7, models.Draft{Title: "Call back", Attrs: map[string]string{"phone": "123"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Call back", list[0].Title)
	assert.Equal(t, "todo", list[0].Status)
	assert.Equal(t, "123", list[0].Attrs["phone"])
	assert.Equal(t, models.PendingUpdate, list[0].Pending)
}

func TestRemove_SyncedIsSoftDeleted(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	list, err := s.Remove(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, s.List(ctx))

	r, ok := s.Get(ctx, 7)
	require.True(t, ok, "soft-deleted record stays in storage")
	assert.Equal(t, models.PendingDelete, r.Pending)

	pending := s.PendingForSync(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, models.PendingDelete, pending[0].Pending)
}

func TestRemove_OfflineCreateIsHardDeleted(t *testing.T) {
	s := newTestStore(t, newMemKV())
	ctx := context.Background()

	added, err := s.AddOffline(ctx, models.Draft{Title: "draft"})
	require.NoError(t, err)
	id := added[0].LocalID

	_, err = s.Remove(ctx, id)
	require.NoError(t, err)

	_, ok := s.Get(ctx, id)
	assert.False(t, ok)
	assert.Empty(t, s.PendingForSync(ctx))
}

func TestRemove_UpdatePendingIsSoftDeleted(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	_, err := s.SetStatus(ctx, 7, "doing")
	require.NoError(t, err)
	_, err = s.Remove(ctx, 7)
	require.NoError(t, err)

	r, ok := s.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, models.PendingDelete, r.Pending)
}

func TestClearCompleted(t *testing.T) {
	m := newMemKV()
	seed(t, m,
		synced(1, 1, "done synced", "Done", t0),
		models.Record{LocalID: 2, Title: "done offline", Status: "completed", CreatedAt: t0, Pending: models.PendingCreate},
		synced(3, 3, "open 1", "todo", t0),
		synced(4, 4, "open 2", "in progress", t0),
		models.Record{LocalID: 5, Title: "open offline", Status: "todo", CreatedAt: t0, Pending: models.PendingCreate},
	)
	s := newTestStore(t, m)
	ctx := context.Background()

	list, err := s.ClearCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	all := stored(t, m)
	require.Len(t, all, 4, "the offline done record is gone, the synced one is soft deleted")
	byID := map[int64]models.Record{}
	for _, r := range all {
		byID[r.LocalID] = r
	}
	assert.Equal(t, models.PendingDelete, byID[1].Pending)
	assert.NotContains(t, byID, int64(2))
	assert.Equal(t, models.PendingNone, byID[3].Pending)
	assert.Equal(t, models.PendingNone, byID[4].Pending)
	assert.Equal(t, models.PendingCreate, byID[5].Pending)
}

func TestMarkSynced_Idempotent(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	_, err := s.SetStatus(ctx, 7, "done")
	require.NoError(t, err)

	_, err = s.MarkSynced(ctx, 7)
	require.NoError(t, err)
	setsAfterFirst := m.sets
	first := stored(t, m)

	_, err = s.MarkSynced(ctx, 7)
	require.NoError(t, err)
	_, err = s.MarkSynced(ctx, 12345)
	require.NoError(t, err)

	assert.Equal(t, setsAfterFirst, m.sets)
	assert.Equal(t, first, stored(t, m))
	assert.Equal(t, models.PendingNone, first[0].Pending)
}

func TestMarkSynced_CreateWithoutServerIDStaysCreate(t *testing.T) {
	s := newTestStore(t, newMemKV())
	ctx := context.Background()

	added, err := s.AddOffline(ctx, models.Draft{Title: "x"})
	require.NoError(t, err)

	list, err := s.MarkSynced(ctx, added[0].LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingCreate, list[0].Pending)
}

func TestMarkSyncedIfUnchanged(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	_, err := s.SetStatus(ctx, 7, "doing")
	require.NoError(t, err)
	pushed, _ := s.Get(ctx, 7)

	_, err = s.SetStatus(ctx, 7, "done")
	require.NoError(t, err)

	_, err = s.MarkSyncedIfUnchanged(ctx, pushed)
	require.NoError(t, err)
	r, _ := s.Get(ctx, 7)
	assert.Equal(t, models.PendingUpdate, r.Pending, "the later edit is still owed")

	_, err = s.MarkSyncedIfUnchanged(ctx, r)
	require.NoError(t, err)
	r, _ = s.Get(ctx, 7)
	assert.Equal(t, models.PendingNone, r.Pending)
}

func TestConfirmCreated(t *testing.T) {
	s := newTestStore(t, newMemKV())
	ctx := context.Background()

	added, err := s.AddOffline(ctx, models.Draft{Title: "a"})
	require.NoError(t, err)
	pushedA := added[0]
	added, err = s.AddOffline(ctx, models.Draft{Title: "b"})
	require.NoError(t, err)
	pushedB := added[0]

	_, found, err := s.ConfirmCreated(ctx, pushedA, 100)
	require.NoError(t, err)
	require.True(t, found)
	a, _ := s.Get(ctx, pushedA.LocalID)
	assert.Equal(t, models.PendingNone, a.Pending)
	assert.Equal(t, int64(100), *a.ServerID)
	assert.Equal(t, pushedA.LocalID, a.LocalID, "local id is immutable")

	_, err = s.SetStatus(ctx, pushedB.LocalID, "done")
	require.NoError(t, err)
	_, found, err = s.ConfirmCreated(ctx, pushedB, 101)
	require.NoError(t, err)
	require.True(t, found)
	b, _ := s.Get(ctx, pushedB.LocalID)
	assert.Equal(t, models.PendingUpdate, b.Pending)
	assert.Equal(t, int64(101), *b.ServerID)

	_, found, err = s.ConfirmCreated(ctx, models.Record{LocalID: 1}, 102)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteLocalRecord(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0), synced(8, 8, "Mail", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	_, err := s.Remove(ctx, 7)
	require.NoError(t, err)
	_, err = s.DeleteLocalRecord(ctx, 7)
	require.NoError(t, err)
	_, err = s.DeleteLocalRecord(ctx, 7)
	require.NoError(t, err)

	all := stored(t, m)
	require.Len(t, all, 1)
	assert.Equal(t, int64(8), all[0].LocalID)
}

func TestPendingForSync_OldestFirstWithoutMutation(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0.Add(-time.Hour)))
	s := newTestStore(t, m)
	ctx := context.Background()

	_, err := s.AddOffline(ctx, models.Draft{Title: "first"})
	require.NoError(t, err)
	_, err = s.AddOffline(ctx, models.Draft{Title: "second"})
	require.NoError(t, err)
	_, err = s.SetStatus(ctx, 7, "done")
	require.NoError(t, err)

	before := m.data[tasks12.StorageKey()]
	pending := s.PendingForSync(ctx)
	assert.Equal(t, before, m.data[tasks12.StorageKey()])

	require.Len(t, pending, 3)
	assert.Equal(t, []string{"Call", "first", "second"}, []string{pending[0].Title, pending[1].Title, pending[2].Title})
}

func TestWriteFailure_ReturnsAttemptedState(t *testing.T) {
	m := newMemKV()
	s := newTestStore(t, m)
	ctx := context.Background()
	m.setErr = errors.New("quota exceeded")

	list, err := s.AddOffline(ctx, models.Draft{Title: "optimistic"})
	require.ErrorIs(t, err, ErrNotPersisted)
	require.Len(t, list, 1)
	assert.Equal(t, "optimistic", list[0].Title)

	assert.Empty(t, s.List(ctx), "nothing was persisted")
}

func TestReadFailure_DoesNotClobber(t *testing.T) {
	m := newMemKV()
	seed(t, m, synced(7, 7, "Call", "todo", t0))
	s := newTestStore(t, m)
	ctx := context.Background()

	m.getErr = errors.New("io timeout")
	list, err := s.AddOffline(ctx, models.Draft{Title: "x"})
	require.ErrorIs(t, err, ErrNotPersisted)
	require.Len(t, list, 1)
	assert.Zero(t, m.sets)

	m.getErr = nil
	assert.Len(t, s.List(ctx), 1)
	assert.Equal(t, "Call", s.List(ctx)[0].Title)
}

func TestScopesAreIsolated(t *testing.T) {
	m := newMemKV()
	ctx := context.Background()
	a := New(m, tasks12)
	b := New(m, scope.Scope{ClientID: "12", Kind: scope.KindNotes})
	c := New(m, scope.Scope{ClientID: "13", Kind: scope.KindTasks})

	_, err := a.AddOffline(ctx, models.Draft{Title: "task"})
	require.NoError(t, err)
	_, err = b.AddOffline(ctx, models.Draft{Title: "note"})
	require.NoError(t, err)

	assert.Len(t, a.List(ctx), 1)
	assert.Len(t, b.List(ctx), 1)
	assert.Empty(t, c.List(ctx))
	assert.Len(t, m.data, 2)
}

func TestStore_SQLiteConcurrentWriters(t *testing.T) {
	db, err := kv.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()
	repo := kv.NewSQLiteRepository(db)

	// Two stores on the same scope, as two processes would have.
	s1 := New(repo, tasks12)
	s2 := New(repo, tasks12)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s1.AddOffline(ctx, models.Draft{Title: fmt.Sprintf("s1-%d", i)})
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s2.AddOffline(ctx, models.Draft{Title: fmt.Sprintf("s2-%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list := s1.List(ctx)
	require.Len(t, list, 40, "no update may be lost")
	ids := map[int64]bool{}
	for _, r := range list {
		ids[r.LocalID] = true
	}
	assert.Len(t, ids, 40)
}

func TestEncryptedStore_WrongPassphraseKeepsRecords(t *testing.T) {
	ctx := context.Background()
	m := newMemKV()

	enc, err := kv.NewEncrypted(ctx, m, []byte("right"))
	require.NoError(t, err)
	s := newTestStore(t, enc)
	_, err = s.AddOffline(ctx, models.Draft{Title: "A"})
	require.NoError(t, err)
	_, err = s.AddOffline(ctx, models.Draft{Title: "B"})
	require.NoError(t, err)
	sealed := m.data[tasks12.StorageKey()]

	_, err = kv.NewEncrypted(ctx, m, []byte("typo"))
	require.ErrorIs(t, err, kv.ErrWrongPassphrase)
	assert.Equal(t, sealed, m.data[tasks12.StorageKey()])

	enc, err = kv.NewEncrypted(ctx, m, []byte("right"))
	require.NoError(t, err)
	list := newTestStore(t, enc).List(ctx)
	require.Len(t, list, 2)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{list[0].Title, list[1].Title})
}
