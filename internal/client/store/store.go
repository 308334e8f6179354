package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
)

// ErrNotPersisted is wrapped by every mutation error: the returned state was
// computed but may not be durable.
var ErrNotPersisted = errors.New("change not persisted")

// errUnchanged aborts an atomic update that has nothing to write.
var errUnchanged = errors.New("unchanged")

// Store is the offline mirror of one scope. It is safe for concurrent use.
type Store struct {
	kv    kv.Storage
	scope scope.Scope
	key   string
	log   logging.Logger
	now   func() time.Time

	mu  sync.Mutex
	ids idSequence
}

type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now for created_at and local ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(storage kv.Storage, sc scope.Scope, opts ...Option) *Store {
	s := &Store{
		kv:    storage,
		scope: sc,
		key:   sc.StorageKey(),
		log:   logging.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("scope", s.key)
	return s
}

func (s *Store) Scope() scope.Scope {
	return s.scope
}

// List returns the visible records, newest first.
func (s *Store) List(ctx context.Context) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(ctx)
	if err != nil {
		s.log.Warn(ctx, "offline store unreadable, listing as empty", "err", err)
	}
	return visible(records)
}

// Get returns a copy of the record, including soft-deleted ones.
func (s *Store) Get(ctx context.Context, localID int64) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(ctx)
	if err != nil {
		s.log.Warn(ctx, "offline store unreadable", "err", err)
	}
	if i := indexOf(records, localID); i >= 0 {
		return records[i].Clone(), true
	}
	return models.Record{}, false
}

// PendingForSync returns every record that still owes a remote operation,
// oldest first so creates reach the server in the order they were made.
// Storage is not modified.
func (s *Store) PendingForSync(ctx context.Context) []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(ctx)
	if err != nil {
		s.log.Warn(ctx, "offline store unreadable, nothing to sync", "err", err)
	}

	out := make([]models.Record, 0)
	for _, r := range records {
		if r.Pending != models.PendingNone {
			out = append(out, r.Clone())
		}
	}
	models.SortNewestFirst(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// CacheServerSnapshot merges a successful remote listing into the scope.
func (s *Store) CacheServerSnapshot(ctx context.Context, server []models.Record) ([]models.Record, error) {
	return s.mutate(ctx, "cache snapshot", func(records []models.Record) ([]models.Record, bool) {
		return Reconcile(records, server), true
	})
}

// AddOffline stores a new record that the server does not know yet.
func (s *Store) AddOffline(ctx context.Context, d models.Draft) ([]models.Record, error) {
	now := s.now().UTC()
	return s.mutate(ctx, "add offline", func(records []models.Record) ([]models.Record, bool) {
		rec := models.Record{
			LocalID:   s.ids.next(now, maxLocalID(records)),
			CreatedAt: now,
			Pending:   models.PendingCreate,
		}
		d.Apply(&rec)
		return append([]models.Record{rec}, records...), true
	})
}

// SetStatus changes the status field of a record.
func (s *Store) SetStatus(ctx context.Context, localID int64, status string) ([]models.Record, error) {
	return s.edit(ctx, "set status", localID, func(r *models.Record) {
		r.Status = status
	})
}

// Update overwrites the domain fields of a record with d (see Draft.Apply).
func (s *Store) Update(ctx context.Context, localID int64, d models.Draft) ([]models.Record, error) {
	return s.edit(ctx, "update", localID, d.Apply)
}

// Remove deletes a record the server never saw, and marks any other record
// pending=delete until the remote deletion is confirmed.
func (s *Store) Remove(ctx context.Context, localID int64) ([]models.Record, error) {
	return s.mutate(ctx, "remove", func(records []models.Record) ([]models.Record, bool) {
		i := indexOf(records, localID)
		if i < 0 {
			return records, false
		}
		return removeAt(records, i)
	})
}

// ClearCompleted removes every visible record whose status is done or
// completed, with the same hard/soft rule as Remove.
func (s *Store) ClearCompleted(ctx context.Context) ([]models.Record, error) {
	return s.mutate(ctx, "clear completed", func(records []models.Record) ([]models.Record, bool) {
		changed := false
		for i := 0; i < len(records); {
			r := records[i]
			if !r.Visible() || !r.Completed() {
				i++
				continue
			}
			var hard bool
			records, hard = removeAtIndex(records, i)
			changed = true
			if !hard {
				i++
			}
		}
		return records, changed
	})
}

// MarkSynced records that the pending create or update of localID reached
// the server. Calling it again, or for an unknown id, does nothing.
func (s *Store) MarkSynced(ctx context.Context, localID int64) ([]models.Record, error) {
	return s.mutate(ctx, "mark synced", func(records []models.Record) ([]models.Record, bool) {
		i := indexOf(records, localID)
		if i < 0 {
			return records, false
		}
		return records, markSynced(&records[i])
	})
}

// MarkSyncedIfUnchanged is MarkSynced for a record pushed earlier: when the
// record was edited after the push it stays pending so the edit is sent too.
func (s *Store) MarkSyncedIfUnchanged(ctx context.Context, pushed models.Record) ([]models.Record, error) {
	return s.mutate(ctx, "mark synced", func(records []models.Record) ([]models.Record, bool) {
		i := indexOf(records, pushed.LocalID)
		if i < 0 || !sameDraft(records[i], pushed) {
			return records, false
		}
		return records, markSynced(&records[i])
	})
}

// ConfirmCreated converts a pushed offline record into a synced one with the
// server id the remote create returned. If the record was edited after the
// push it becomes pending=update. found is false when the record no longer
// exists locally (removed while the create was in flight).
func (s *Store) ConfirmCreated(ctx context.Context, pushed models.Record, serverID int64) (records []models.Record, found bool, err error) {
	records, err = s.mutate(ctx, "confirm created", func(records []models.Record) ([]models.Record, bool) {
		i := indexOf(records, pushed.LocalID)
		found = i >= 0
		if !found || records[i].Pending != models.PendingCreate {
			return records, false
		}
		r := &records[i]
		r.ServerID = models.Int64(serverID)
		r.Pending = models.PendingNone
		if !sameDraft(*r, pushed) {
			r.Pending = models.PendingUpdate
		}
		return records, true
	})
	return records, found, err
}

// DeleteLocalRecord physically removes a record, typically after its remote
// deletion succeeded. Unknown ids are ignored.
func (s *Store) DeleteLocalRecord(ctx context.Context, localID int64) ([]models.Record, error) {
	return s.mutate(ctx, "delete local record", func(records []models.Record) ([]models.Record, bool) {
		i := indexOf(records, localID)
		if i < 0 {
			return records, false
		}
		return append(records[:i:i], records[i+1:]...), true
	})
}

// edit applies fn to a visible record and moves a synced record to
// pending=update. Records awaiting deletion are not editable.
func (s *Store) edit(ctx context.Context, op string, localID int64, fn func(*models.Record)) ([]models.Record, error) {
	return s.mutate(ctx, op, func(records []models.Record) ([]models.Record, bool) {
		i := indexOf(records, localID)
		if i < 0 || records[i].Pending == models.PendingDelete {
			return records, false
		}
		r := &records[i]
		fn(r)
		if r.Pending == models.PendingNone {
			r.Pending = models.PendingUpdate
			if !r.HasServerID() {
				r.Pending = models.PendingCreate
			}
		}
		return records, true
	})
}

// mutate runs one read-modify-write pass. apply gets a private copy of the
// stored records and reports whether it changed anything; unchanged passes
// are not written.
func (s *Store) mutate(ctx context.Context, op string, apply func([]models.Record) ([]models.Record, bool)) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		next []models.Record
		ran  bool
	)

	if u, ok := s.kv.(kv.Updater); ok {
		err := u.Update(ctx, s.key, func(current string, found bool) (string, error) {
			records := []models.Record{}
			if found {
				records = s.decode(ctx, current)
			}
			var changed bool
			next, changed = apply(records)
			ran = true
			if !changed {
				return "", errUnchanged
			}
			return Encode(next)
		})
		if errors.Is(err, errUnchanged) {
			err = nil
		}
		if err != nil {
			if !ran {
				next, _ = apply([]models.Record{})
			}
			return s.failed(ctx, op, next, err)
		}
		return visible(next), nil
	}

	records, readErr := s.read(ctx)
	next, changed := apply(records)
	if readErr != nil {
		// Writing now would replace the unreadable scope with this pass.
		return s.failed(ctx, op, next, readErr)
	}
	if !changed {
		return visible(next), nil
	}

	raw, err := Encode(next)
	if err == nil {
		err = s.kv.Set(ctx, s.key, raw)
	}
	if err != nil {
		return s.failed(ctx, op, next, err)
	}
	return visible(next), nil
}

func (s *Store) failed(ctx context.Context, op string, next []models.Record, err error) ([]models.Record, error) {
	s.log.Error(ctx, "offline store change not persisted", "op", op, "err", err)
	return visible(next), fmt.Errorf("%s: %w: %w", op, ErrNotPersisted, err)
}

// read loads the scope. Corrupt values read as empty without error; an error
// is returned only when the storage itself failed.
func (s *Store) read(ctx context.Context) ([]models.Record, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrCorrupt) {
		s.log.Warn(ctx, "offline store value corrupt, treating scope as empty", "err", err)
		return []models.Record{}, nil
	}
	if err != nil {
		return []models.Record{}, err
	}
	if !ok {
		return []models.Record{}, nil
	}
	return s.decode(ctx, raw), nil
}

func (s *Store) decode(ctx context.Context, raw string) []models.Record {
	records, dropped, err := Decode(raw)
	if err != nil {
		s.log.Warn(ctx, "offline store value corrupt, treating scope as empty", "err", err)
	}
	if dropped > 0 {
		s.log.Warn(ctx, "dropped malformed offline records", "count", dropped)
	}
	return records
}

func visible(records []models.Record) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.Visible() {
			out = append(out, r.Clone())
		}
	}
	models.SortNewestFirst(out)
	return out
}

func indexOf(records []models.Record, localID int64) int {
	for i := range records {
		if records[i].LocalID == localID {
			return i
		}
	}
	return -1
}

// removeAt applies the remove rule to records[i] and reports a change.
func removeAt(records []models.Record, i int) ([]models.Record, bool) {
	if records[i].Pending == models.PendingDelete {
		return records, false
	}
	records, _ = removeAtIndex(records, i)
	return records, true
}

// removeAtIndex hard-deletes a record the server never saw and soft-deletes
// any other. hard reports which one happened.
func removeAtIndex(records []models.Record, i int) (out []models.Record, hard bool) {
	r := &records[i]
	if !r.HasServerID() || r.Pending == models.PendingCreate {
		return append(records[:i:i], records[i+1:]...), true
	}
	r.Pending = models.PendingDelete
	return records, false
}

func markSynced(r *models.Record) bool {
	switch r.Pending {
	case models.PendingUpdate:
		r.Pending = models.PendingNone
		return true
	case models.PendingCreate:
		if r.HasServerID() {
			r.Pending = models.PendingNone
			return true
		}
	}
	return false
}

func sameDraft(a, b models.Record) bool {
	if a.Title != b.Title || a.Status != b.Status || a.Priority != b.Priority || len(a.Attrs) != len(b.Attrs) {
		return false
	}
	for k, v := range a.Attrs {
		if bv, ok := b.Attrs[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
