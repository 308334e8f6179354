package store

import "github.com/dmitrijs2005/bizkeeper/internal/client/models"

// Reconcile merges the local records of a scope with a fresh server snapshot.
// It is pure: inputs are not modified and the result depends only on them.
//
//   - pending=create records are kept untouched; the server does not know them.
//     One that already carries a server id also hides the snapshot copy.
//   - pending=update and pending=delete records whose server id is in the
//     snapshot are kept instead of the server copy, until their sync resolves.
//   - Any other local record is replaced by the snapshot, or dropped when its
//     server id is no longer listed.
//   - A server record keeps the local id it was already mirrored under.
//     New ones use their server id as local id, or the next free id when
//     that is taken. Duplicate server ids in the snapshot: the first wins.
//
// The result is sorted newest first (stable).
func Reconcile(local, server []models.Record) []models.Record {
	inSnapshot := make(map[int64]struct{}, len(server))
	for _, r := range server {
		if r.ServerID != nil {
			inSnapshot[*r.ServerID] = struct{}{}
		}
	}

	out := make([]models.Record, 0, len(local)+len(server))
	used := make(map[int64]struct{}, len(local)+len(server))
	shielded := make(map[int64]struct{})
	localIDByServer := make(map[int64]int64)
	var maxID int64

	keep := func(r models.Record) {
		out = append(out, r.Clone())
		used[r.LocalID] = struct{}{}
		if r.LocalID > maxID {
			maxID = r.LocalID
		}
	}

	for _, r := range local {
		if r.ServerID != nil {
			localIDByServer[*r.ServerID] = r.LocalID
		}
		switch r.Pending {
		case models.PendingCreate:
			keep(r)
			if r.ServerID != nil {
				shielded[*r.ServerID] = struct{}{}
			}
		case models.PendingUpdate, models.PendingDelete:
			if r.ServerID == nil {
				continue
			}
			if _, ok := inSnapshot[*r.ServerID]; ok {
				keep(r)
				shielded[*r.ServerID] = struct{}{}
			}
		}
	}

	// Local ids already mirroring a listed server id are reserved for it.
	reserved := make(map[int64]struct{})
	for sid := range inSnapshot {
		if id, ok := localIDByServer[sid]; ok {
			reserved[id] = struct{}{}
			if id > maxID {
				maxID = id
			}
		}
	}
	free := func(id int64) bool {
		_, r := reserved[id]
		return id != 0 && !isUsed(used, id) && !r
	}

	for _, r := range server {
		if r.ServerID == nil {
			continue
		}
		sid := *r.ServerID
		if _, ok := shielded[sid]; ok {
			continue
		}
		// Marks the server id as handled, so duplicates are skipped.
		shielded[sid] = struct{}{}

		rec := r.Clone()
		rec.Pending = models.PendingNone
		if id, ok := localIDByServer[sid]; ok && !isUsed(used, id) {
			rec.LocalID = id
		} else {
			rec.LocalID = sid
			if !free(sid) {
				rec.LocalID = maxID + 1
				for !free(rec.LocalID) {
					rec.LocalID++
				}
			}
		}
		keep(rec)
	}

	models.SortNewestFirst(out)
	return out
}

func isUsed(used map[int64]struct{}, id int64) bool {
	_, ok := used[id]
	return ok
}
