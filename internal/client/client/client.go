package client

import (
	"context"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
)

type Client interface {
	Ping(ctx context.Context) error
	List(ctx context.Context, sc scope.Scope) ([]models.RemoteRecord, error)
	Create(ctx context.Context, sc scope.Scope, d models.Draft, idempotencyKey string) (models.RemoteRecord, error)
	Update(ctx context.Context, sc scope.Scope, serverID int64, d models.Draft) (models.RemoteRecord, error)
	Delete(ctx context.Context, sc scope.Scope, serverID int64) error
}
