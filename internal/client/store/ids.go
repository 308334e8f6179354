package store

import (
	"time"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
)

// idSequence issues local ids: the creation time in milliseconds, bumped past
// the last issued id and past every id already present in the scope. Ids stay
// unique under rapid calls and when the wall clock steps backwards.
// Guarded by Store.mu.
type idSequence struct {
	last int64
}

func (s *idSequence) next(now time.Time, existingMax int64) int64 {
	id := now.UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	if id <= existingMax {
		id = existingMax + 1
	}
	s.last = id
	return id
}

func maxLocalID(records []models.Record) int64 {
	var m int64
	for _, r := range records {
		if r.LocalID > m {
			m = r.LocalID
		}
	}
	return m
}
