// Package services contains the application services of the client: the
// collection service behind the CLI commands and the sync driver that replays
// offline changes.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/client/client"
	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/dmitrijs2005/bizkeeper/internal/client/store"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
)

// Result is the visible collection after an operation.
type Result struct {
	Records []models.Record
	// Offline is set when the server could not be used and Records come from
	// the offline store alone. Cause holds the remote error.
	Offline bool
	Cause   error
}

// CollectionService edits the records of one scope.
//
// Every change is written to the offline store first and then pushed to the
// server. When the server is unreachable the change stays pending for the
// sync driver and the result is marked Offline; the call itself succeeds.
// An error is returned when the local write failed (store.ErrNotPersisted) or
// the server refused the change.
type CollectionService interface {
	Scope() scope.Scope
	Load(ctx context.Context) (Result, error)
	Add(ctx context.Context, d models.Draft) (Result, error)
	SetStatus(ctx context.Context, localID int64, status string) (Result, error)
	Update(ctx context.Context, localID int64, d models.Draft) (Result, error)
	Remove(ctx context.Context, localID int64) (Result, error)
	ClearCompleted(ctx context.Context) (Result, error)
	Pending(ctx context.Context) []models.Record
}

type collectionService struct {
	client client.Client
	store  *store.Store
	log    logging.Logger
}

func NewCollectionService(c client.Client, st *store.Store, log logging.Logger) CollectionService {
	return &collectionService{client: c, store: st, log: log.With("scope", st.Scope().String())}
}

func (s *collectionService) Scope() scope.Scope {
	return s.store.Scope()
}

// Load lists the scope from the server and caches it. On failure the offline
// list is returned.
func (s *collectionService) Load(ctx context.Context) (Result, error) {
	remote, err := s.client.List(ctx, s.Scope())
	if err != nil {
		s.log.Warn(ctx, "remote list failed, using offline store", "err", err)
		return s.offline(ctx, err), nil
	}

	records, err := s.store.CacheServerSnapshot(ctx, models.Records(remote))
	if err != nil {
		// The snapshot is still current; only the cache is stale.
		s.log.Warn(ctx, "failed to cache server snapshot", "err", err)
	}
	return Result{Records: records}, nil
}

func (s *collectionService) Add(ctx context.Context, d models.Draft) (Result, error) {
	records, err := s.store.AddOffline(ctx, d)
	if err != nil {
		return Result{Records: records}, fmt.Errorf("add: %w", err)
	}

	// New local ids exceed every stored one.
	added, ok := newest(records)
	if !ok {
		return Result{Records: records}, nil
	}

	res, err := s.pushOne(ctx, added)
	if errors.Is(err, client.ErrRejected) {
		if _, derr := s.store.DeleteLocalRecord(ctx, added.LocalID); derr != nil {
			s.log.Error(ctx, "failed to drop rejected record", "local_id", added.LocalID, "err", derr)
		}
		res.Records = s.store.List(ctx)
	}
	return res, err
}

func (s *collectionService) SetStatus(ctx context.Context, localID int64, status string) (Result, error) {
	if _, err := s.store.SetStatus(ctx, localID, status); err != nil {
		return s.local(ctx), fmt.Errorf("set status: %w", err)
	}
	return s.pushByID(ctx, localID)
}

func (s *collectionService) Update(ctx context.Context, localID int64, d models.Draft) (Result, error) {
	if _, err := s.store.Update(ctx, localID, d); err != nil {
		return s.local(ctx), fmt.Errorf("update: %w", err)
	}
	return s.pushByID(ctx, localID)
}

func (s *collectionService) Remove(ctx context.Context, localID int64) (Result, error) {
	if _, err := s.store.Remove(ctx, localID); err != nil {
		return s.local(ctx), fmt.Errorf("remove: %w", err)
	}
	return s.pushByID(ctx, localID)
}

// ClearCompleted removes every done record locally, then pushes the
// resulting remote deletions.
func (s *collectionService) ClearCompleted(ctx context.Context) (Result, error) {
	if _, err := s.store.ClearCompleted(ctx); err != nil {
		return s.local(ctx), fmt.Errorf("clear completed: %w", err)
	}

	var errs []error
	for _, r := range s.store.PendingForSync(ctx) {
		if r.Pending != models.PendingDelete {
			continue
		}
		if _, err := push(ctx, s.client, s.store, r); err != nil {
			if isOffline(err) {
				return s.offline(ctx, err), nil
			}
			errs = append(errs, err)
		}
	}
	return s.local(ctx), errors.Join(errs...)
}

func (s *collectionService) Pending(ctx context.Context) []models.Record {
	return s.store.PendingForSync(ctx)
}

// pushByID pushes the record if it still owes a remote operation.
func (s *collectionService) pushByID(ctx context.Context, localID int64) (Result, error) {
	r, ok := s.store.Get(ctx, localID)
	if !ok || r.Pending == models.PendingNone {
		return s.local(ctx), nil
	}
	return s.pushOne(ctx, r)
}

func (s *collectionService) pushOne(ctx context.Context, r models.Record) (Result, error) {
	if _, err := push(ctx, s.client, s.store, r); err != nil {
		if isOffline(err) {
			s.log.Info(ctx, "server unavailable, change kept for sync", "local_id", r.LocalID, "pending", string(r.Pending), "err", err)
			return s.offline(ctx, err), nil
		}
		s.log.Warn(ctx, "change not accepted", "local_id", r.LocalID, "pending", string(r.Pending), "err", err)
		return s.local(ctx), err
	}
	return s.local(ctx), nil
}

func (s *collectionService) local(ctx context.Context) Result {
	return Result{Records: s.store.List(ctx)}
}

func (s *collectionService) offline(ctx context.Context, cause error) Result {
	return Result{Records: s.store.List(ctx), Offline: true, Cause: cause}
}

func newest(records []models.Record) (models.Record, bool) {
	var (
		best  models.Record
		found bool
	)
	for _, r := range records {
		if r.Pending != models.PendingCreate {
			continue
		}
		if !found || r.LocalID > best.LocalID {
			best, found = r, true
		}
	}
	return best, found
}
