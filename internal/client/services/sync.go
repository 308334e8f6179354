package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/client/client"
	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/store"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
)

// SyncResult summarizes one Sync pass.
type SyncResult struct {
	Created int
	Updated int
	Deleted int
	Failed  int
	// Pulled is the size of the server snapshot, -1 when none was fetched.
	Pulled  int
	Offline bool
	Err     error
}

// Changed reports whether the pass pushed anything.
func (r *SyncResult) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

// SyncService replays offline changes of one scope and refreshes its cache.
type SyncService interface {
	Ping(ctx context.Context) error
	Sync(ctx context.Context) (*SyncResult, error)
	Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error
}

type syncService struct {
	client client.Client
	store  *store.Store
	log    logging.Logger

	// mu keeps a manual sync and the background loop from pushing the same
	// record twice.
	mu sync.Mutex
}

func NewSyncService(c client.Client, st *store.Store, log logging.Logger) SyncService {
	return &syncService{client: c, store: st, log: log.With("scope", st.Scope().String())}
}

func (s *syncService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Sync pushes every pending record, oldest first, then pulls a fresh snapshot.
// A record whose push fails stays pending. If the server turns out to be
// unreachable the pass stops and no snapshot is pulled. The returned error
// joins every failure and is also kept in SyncResult.Err.
func (s *syncService) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &SyncResult{Pulled: -1}
	var errs []error

	for _, r := range s.store.PendingForSync(ctx) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		out, err := push(ctx, s.client, s.store, r)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("%s %d: %w", r.Pending, r.LocalID, err))
			if isOffline(err) {
				res.Offline = true
				break
			}
			continue
		}

		switch out {
		case outcomeCreated:
			res.Created++
		case outcomeUpdated:
			res.Updated++
		case outcomeDeleted:
			res.Deleted++
		}
	}

	if !res.Offline && ctx.Err() == nil {
		if err := s.pull(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}

	res.Err = errors.Join(errs...)
	s.log.Info(ctx, "sync finished",
		"created", res.Created, "updated", res.Updated, "deleted", res.Deleted,
		"failed", res.Failed, "pulled", res.Pulled, "offline", res.Offline)
	return res, res.Err
}

func (s *syncService) pull(ctx context.Context, res *SyncResult) error {
	remote, err := s.client.List(ctx, s.store.Scope())
	if err != nil {
		res.Offline = isOffline(err)
		return fmt.Errorf("pull: %w", err)
	}
	res.Pulled = len(remote)
	if _, err := s.store.CacheServerSnapshot(ctx, models.Records(remote)); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	return nil
}

// Run calls Sync every interval and whenever trigger fires, until ctx is
// done. A non-positive interval disables the timer; a closed trigger is
// ignored from then on.
func (s *syncService) Run(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case _, ok := <-trigger:
			if !ok {
				trigger = nil
				continue
			}
		}

		if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			s.log.Debug(ctx, "background sync incomplete", "err", err)
		}
	}
}
