package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/client/client"
	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/store"
)

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeDeleted
)

// push sends the pending intent of r to the server and settles the local
// copy. On error the record is left pending.
func push(ctx context.Context, c client.Client, st *store.Store, r models.Record) (outcome, error) {
	sc := st.Scope()

	switch r.Pending {
	case models.PendingCreate:
		remote, err := c.Create(ctx, sc, r.Draft(), client.IdempotencyKey(sc, r.LocalID))
		if err != nil {
			return outcomeNone, fmt.Errorf("create: %w", err)
		}
		_, found, err := st.ConfirmCreated(ctx, r, remote.ID)
		if err != nil {
			return outcomeNone, err
		}
		if !found {
			// Removed locally while the create was in flight.
			if err := c.Delete(ctx, sc, remote.ID); err != nil && !errors.Is(err, client.ErrNotFound) {
				return outcomeNone, fmt.Errorf("delete orphan %d: %w", remote.ID, err)
			}
		}
		return outcomeCreated, nil

	case models.PendingUpdate:
		if !r.HasServerID() {
			return outcomeNone, nil
		}
		serverID := r.ServerIDValue()
		_, err := c.Update(ctx, sc, serverID, r.Draft())
		if errors.Is(err, client.ErrNotFound) {
			// Deleted on the server; the edit has nothing to apply to.
			if _, err := st.DeleteLocalRecord(ctx, r.LocalID); err != nil {
				return outcomeNone, err
			}
			return outcomeDeleted, nil
		}
		if err != nil {
			return outcomeNone, fmt.Errorf("update %d: %w", serverID, err)
		}
		if _, err := st.MarkSyncedIfUnchanged(ctx, r); err != nil {
			return outcomeNone, err
		}
		return outcomeUpdated, nil

	case models.PendingDelete:
		if serverID := r.ServerIDValue(); serverID != 0 {
			err := c.Delete(ctx, sc, serverID)
			if err != nil && !errors.Is(err, client.ErrNotFound) {
				return outcomeNone, fmt.Errorf("delete %d: %w", serverID, err)
			}
		}
		if _, err := st.DeleteLocalRecord(ctx, r.LocalID); err != nil {
			return outcomeNone, err
		}
		return outcomeDeleted, nil
	}

	return outcomeNone, nil
}

// isOffline reports errors that mean the server cannot be used right now, as
// opposed to the server refusing one particular record.
func isOffline(err error) bool {
	return errors.Is(err, client.ErrUnavailable) || errors.Is(err, client.ErrUnauthorized)
}
