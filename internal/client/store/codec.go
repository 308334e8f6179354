package store

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
)

// Decode parses a stored scope value. The error is set only when raw is not a
// JSON array at all, in which case the scope reads as empty. Entries that are
// not valid records are skipped and counted in dropped:
//
//   - the element does not decode into a Record (bad types, bad created_at),
//   - local_id is zero or pending is not a known intent,
//   - local_id repeats an earlier entry,
//   - pending is delete but there is no server id to delete.
//
// A record without a server id but with pending none or update is repaired to
// pending create, since only a create can be owed for it. A create that already
// has a server id is repaired to pending update.
func Decode(raw string) (records []models.Record, dropped int, err error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return []models.Record{}, 0, fmt.Errorf("scope value is not a JSON array: %w", err)
	}

	records = make([]models.Record, 0, len(elems))
	seen := make(map[int64]struct{}, len(elems))

	for _, elem := range elems {
		var r models.Record
		if err := json.Unmarshal(elem, &r); err != nil {
			dropped++
			continue
		}
		if r.LocalID == 0 || !r.Pending.Valid() {
			dropped++
			continue
		}
		if _, dup := seen[r.LocalID]; dup {
			dropped++
			continue
		}
		if !r.HasServerID() {
			switch r.Pending {
			case models.PendingDelete:
				dropped++
				continue
			case models.PendingNone, models.PendingUpdate:
				r.Pending = models.PendingCreate
			}
		}
		if r.HasServerID() && r.Pending == models.PendingCreate {
			r.Pending = models.PendingUpdate
		}
		seen[r.LocalID] = struct{}{}
		records = append(records, r)
	}

	return records, dropped, nil
}

// Encode serializes records as the stored JSON array. Nil encodes as [].
func Encode(records []models.Record) (string, error) {
	if records == nil {
		records = []models.Record{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
