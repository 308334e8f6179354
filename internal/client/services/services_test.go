package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/bizkeeper/internal/client/client"
	"github.com/dmitrijs2005/bizkeeper/internal/client/client/apitest"
	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/dmitrijs2005/bizkeeper/internal/client/store"
	"github.com/dmitrijs2005/bizkeeper/internal/logging"
	"github.com/stretchr/testify/require"
)

var tasks12 = scope.Scope{ClientID: "12", Kind: scope.KindTasks}

type env struct {
	srv   *apitest.Server
	api   client.Client
	store *store.Store
	coll  CollectionService
	sync  SyncService
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := kv.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.New(kv.NewSQLiteRepository(db), tasks12)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := apitest.NewServer(t)
	api, err := client.NewRESTClient(srv.URL)
	require.NoError(t, err)
	return newEnvWith(t, srv, api)
}

func newEnvWith(t *testing.T, srv *apitest.Server, api client.Client) *env {
	t.Helper()
	st := setupStore(t)
	log := logging.Discard()
	return &env{
		srv:   srv,
		api:   api,
		store: st,
		coll:  NewCollectionService(api, st, log),
		sync:  NewSyncService(api, st, log),
	}
}

func titles(records []models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}

func find(t *testing.T, records []models.Record, title string) models.Record {
	t.Helper()
	for _, r := range records {
		if r.Title == title {
			return r
		}
	}
	t.Fatalf("record %q not found in %v", title, titles(records))
	return models.Record{}
}
