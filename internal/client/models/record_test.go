package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending_Valid(t *testing.T) {
	for _, p := range []Pending{PendingNone, PendingCreate, PendingUpdate, PendingDelete} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Pending("").Valid())
	assert.False(t, Pending("CREATE").Valid())
}

func TestRecord_Completed(t *testing.T) {
	tests := map[string]bool{
		"done":        true,
		"DONE":        true,
		" Completed ": true,
		"todo":        false,
		"":            false,
		"done-ish":    false,
	}
	for status, want := range tests {
		assert.Equal(t, want, Record{Status: status}.Completed(), status)
	}
}

func TestRecord_CloneIsDeep(t *testing.T) {
	orig := Record{LocalID: 1, ServerID: Int64(7), Attrs: map[string]string{"due": "today"}}

	c := orig.Clone()
	*c.ServerID = 8
	c.Attrs["due"] = "tomorrow"

	assert.Equal(t, int64(7), *orig.ServerID)
	assert.Equal(t, "today", orig.Attrs["due"])
}

func TestRecord_ServerIDValue(t *testing.T) {
	assert.Equal(t, int64(0), Record{}.ServerIDValue())
	assert.Equal(t, int64(42), Record{ServerID: Int64(42)}.ServerIDValue())
	assert.False(t, Record{}.HasServerID())
	assert.True(t, Record{ServerID: Int64(1)}.HasServerID())
}

func TestSortNewestFirst_StableForTies(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{LocalID: 1, CreatedAt: t0},
		{LocalID: 2, CreatedAt: t0.Add(time.Hour)},
		{LocalID: 3, CreatedAt: t0},
		{LocalID: 4, CreatedAt: t0.Add(2 * time.Hour)},
	}

	SortNewestFirst(records)

	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.LocalID)
	}
	require.Equal(t, []int64{4, 2, 1, 3}, ids)
}

func TestCloneAll_NilGivesEmpty(t *testing.T) {
	out := CloneAll(nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}
