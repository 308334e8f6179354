package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/client/client"
	"github.com/dmitrijs2005/bizkeeper/internal/client/config"
	"github.com/dmitrijs2005/bizkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/dmitrijs2005/bizkeeper/internal/client/services"
	"github.com/dmitrijs2005/bizkeeper/internal/client/store"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// pingTimeout bounds a single online check.
const pingTimeout = 3 * time.Second

type App struct {
	config       *config.Config
	log          logging.Logger
	api          client.Client
	kv           kv.Storage
	closeStorage func() error

	mu      sync.Mutex
	mode    Mode
	coll    services.CollectionService
	syncSvc services.SyncService

	// syncTrigger wakes the background sync loop. It is buffered so a
	// pending request is never lost and senders never block.
	syncTrigger chan struct{}
	runCtx      context.Context
	stopSync    context.CancelFunc
	wg          sync.WaitGroup
}

// NewApp opens the configured offline storage, builds the REST client and
// selects the configured scope.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	sc, err := scope.New(cfg.ClientID, cfg.Resource)
	if err != nil {
		return nil, err
	}

	storage, closeFn, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.EncryptionPassphrase != "" {
		enc, err := kv.NewEncrypted(ctx, storage, []byte(cfg.EncryptionPassphrase))
		if err != nil {
			_ = closeFn()
			return nil, fmt.Errorf("failed to init encryption: %w", err)
		}
		storage = enc
	}

	opts := []client.Option{client.WithTimeout(cfg.RequestTimeout), client.WithLogger(log)}
	if _, err := os.Stat(cfg.TokenFile); err == nil {
		opts = append(opts, client.WithTokenSource(client.NewFileTokenSource(cfg.TokenFile)))
	} else {
		log.Debug(ctx, "no token file, requests are sent unauthenticated", "path", cfg.TokenFile)
	}

	api, err := client.NewRESTClient(cfg.APIBaseURL, opts...)
	if err != nil {
		_ = closeFn()
		return nil, err
	}

	a := newApp(cfg, log, api, storage)
	a.closeStorage = closeFn
	a.setScope(sc)
	return a, nil
}

func newApp(cfg *config.Config, log logging.Logger, api client.Client, storage kv.Storage) *App {
	return &App{
		config:       cfg,
		log:          log,
		api:          api,
		kv:           storage,
		closeStorage: func() error { return nil },
		syncTrigger:  make(chan struct{}, 1),
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (kv.Storage, func() error, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.StorageBackend {
	case config.BackendSQLite:
		if db, err = kv.OpenSQLite(ctx, cfg.DatabaseDSN); err != nil {
			return nil, nil, err
		}
		return kv.NewSQLiteRepository(db), db.Close, nil

	case config.BackendPostgres:
		if db, err = kv.OpenPostgres(ctx, cfg.DatabaseDSN); err != nil {
			return nil, nil, err
		}
		return kv.NewPostgresRepository(db), db.Close, nil

	case config.BackendS3:
		repo, err := kv.NewS3RepositoryFromConfig(ctx, kv.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// setScope switches the REPL to sc. The background sync loop, if running,
// is restarted for the new scope.
func (a *App) setScope(sc scope.Scope) {
	st := store.New(a.kv, sc, store.WithLogger(a.log))

	a.mu.Lock()
	defer a.mu.Unlock()

	a.coll = services.NewCollectionService(a.api, st, a.log)
	a.syncSvc = services.NewSyncService(a.api, st, a.log)
	a.startSyncLoop()
}

// startSyncLoop must be called with mu held.
func (a *App) startSyncLoop() {
	if a.runCtx == nil {
		return
	}
	if a.stopSync != nil {
		a.stopSync()
	}

	ctx, cancel := context.WithCancel(a.runCtx)
	a.stopSync = cancel

	svc := a.syncSvc
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = svc.Run(ctx, a.config.SyncInterval, a.syncTrigger)
	}()
}

func (a *App) collection() services.CollectionService {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coll
}

func (a *App) syncer() services.SyncService {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncSvc
}

// requestSync asks the background loop for a pass without blocking.
func (a *App) requestSync() {
	select {
	case a.syncTrigger <- struct{}{}:
	default:
	}
}

func (a *App) currentMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// setMode records the connectivity mode and reports whether it changed.
func (a *App) setMode(ctx context.Context, mode Mode) bool {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(ctx, "switched mode", "mode", string(mode))
	}
	return changed
}

func (a *App) status() string {
	mode := a.currentMode()
	if mode == "" {
		mode = ModeOffline
	}
	return fmt.Sprintf("%s %s", mode, a.collection().Scope())
}

// checkOnline pings the API once. Coming back online triggers a sync so
// changes made offline reach the server without user action.
func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := a.api.Ping(pctx)
	cancel()

	if err != nil {
		a.setMode(ctx, ModeOffline)
		return
	}

	if a.setMode(ctx, ModeOnline) {
		a.requestSync()
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Run starts the watcher and the sync loop, then serves the REPL on stdin
// until the user quits or ctx is canceled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	// cancel runs first so the watcher exits before Close waits for it.
	defer a.Close()
	defer cancel()

	a.mu.Lock()
	a.runCtx = ctx
	a.startSyncLoop()
	a.mu.Unlock()

	a.checkOnline(ctx)
	if a.config.OnlineCheckInterval > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runREPL(ctx, a, a.status, bufio.NewScanner(os.Stdin))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		printlnFn()
	}
}

// Close stops the background goroutines and releases the storage.
func (a *App) Close() {
	a.mu.Lock()
	if a.stopSync != nil {
		a.stopSync()
	}
	a.runCtx = nil
	a.mu.Unlock()

	a.wg.Wait()

	if err := a.closeStorage(); err != nil {
		a.log.Error(context.Background(), "failed to close storage", "err", err)
	}
}
