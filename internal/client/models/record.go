package models

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Pending is the synchronization intent attached to a Record: which remote
// operation, if any, is still owed to the server.
type Pending string

const (
	PendingNone   Pending = "none"
	PendingCreate Pending = "create"
	PendingUpdate Pending = "update"
	PendingDelete Pending = "delete"
)

// Valid reports whether p is one of the four known intents.
func (p Pending) Valid() bool {
	switch p {
	case PendingNone, PendingCreate, PendingUpdate, PendingDelete:
		return true
	}
	return false
}

// Record is one locally mirrored resource instance (a task, note, file or
// checklist item) within a scope.
type Record struct {
	LocalID   int64             `json:"local_id"`
	ServerID  *int64            `json:"server_id,omitempty"`
	Title     string            `json:"title"`
	Status    string            `json:"status,omitempty"`
	Priority  string            `json:"priority,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Pending   Pending           `json:"pending"`
}

// HasServerID reports whether the record is known to exist remotely.
func (r Record) HasServerID() bool {
	return r.ServerID != nil
}

// Visible is false for records awaiting a confirmed remote delete.
func (r Record) Visible() bool {
	return r.Pending != PendingDelete
}

// Completed matches the "done"/"completed" statuses, ignoring case.
func (r Record) Completed() bool {
	s := strings.TrimSpace(r.Status)
	return strings.EqualFold(s, "done") || strings.EqualFold(s, "completed")
}

// Draft returns the editable part of the record.
func (r Record) Draft() Draft {
	return Draft{Title: r.Title, Status: r.Status, Priority: r.Priority, Attrs: maps.Clone(r.Attrs)}
}

// Clone returns a deep copy, so callers never share the ServerID pointer or
// the Attrs map with the stored collection.
func (r Record) Clone() Record {
	if r.ServerID != nil {
		id := *r.ServerID
		r.ServerID = &id
	}
	r.Attrs = maps.Clone(r.Attrs)
	return r
}

// ServerIDValue returns the server id, or 0 when absent.
func (r Record) ServerIDValue() int64 {
	if r.ServerID == nil {
		return 0
	}
	return *r.ServerID
}

// Int64 returns a pointer to v. Used for Record.ServerID literals.
func Int64(v int64) *int64 {
	return &v
}

// SortNewestFirst orders records by CreatedAt descending. The sort is stable,
// so records with equal timestamps keep their storage order.
func SortNewestFirst(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// CloneAll deep-copies a slice of records. A nil input yields an empty slice.
func CloneAll(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.Clone())
	}
	return out
}
