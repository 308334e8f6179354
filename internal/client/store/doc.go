// Package store implements the offline fallback store: a durable local mirror
// of one remote resource collection (a scope), usable whether or not the
// remote API is reachable.
//
// # Overview
//
// Every scope is persisted as one JSON array under its storage key in a
// kv.Storage. Each operation is a full read-modify-write pass over that array,
// serialized per Store by a mutex and, when the storage implements kv.Updater,
// executed atomically by the backend as well.
//
// Records carry a sync intent (models.Pending):
//
//	[nonexistent]     --AddOffline-->          pending=create, no server id
//	[pending=none]    --SetStatus/Update-->    pending=update
//	[pending=create]  --ConfirmCreated-->      pending=none, server id set
//	[pending=update]  --MarkSynced-->          pending=none
//	[no server id]    --Remove-->              deleted
//	[pending=none]    --Remove-->              pending=delete (hidden from List)
//	[pending=delete]  --DeleteLocalRecord-->   deleted
//
// # Reads
//
// List never fails. Storage that cannot be read, or a value that is not a JSON
// array, yields an empty list. Individual malformed entries are dropped by
// Decode and logged.
//
// # Writes
//
// Mutations return the attempted next visible state even when it could not be
// persisted; the accompanying error wraps ErrNotPersisted. Asking for an
// unknown local id, or for a transition the record's state does not allow, is
// a silent no-op and performs no write.
//
// # Reconciliation
//
// CacheServerSnapshot merges a fresh server list with the local records using
// the pure Reconcile function: records still owed to the server are kept,
// everything else is replaced by the snapshot.
package store
