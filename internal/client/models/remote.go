package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// RemoteRecord is a resource as returned by the REST API. Besides the
// conventional fields it keeps every other scalar key in Extra, so kinds with
// their own payload (note content, file url) survive normalization.
type RemoteRecord struct {
	ID        int64
	Title     string
	Status    string
	Priority  string
	CreatedAt time.Time
	Extra     map[string]string
}

// titleKeys and doneKeys cover the payload variants of the resource kinds:
// tasks use title/status, checklist items text/done, files name, notes content.
var (
	titleKeys = []string{"title", "text", "name", "content"}
	doneKeys  = []string{"done", "completed"}
)

func (r *RemoteRecord) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	idRaw, ok := raw["id"]
	if !ok {
		return errors.New("remote record without id")
	}
	id, err := parseID(idRaw)
	if err != nil {
		return err
	}

	out := RemoteRecord{ID: id, Extra: map[string]string{}}

	for _, k := range titleKeys {
		if s, ok := stringField(raw, k); ok && s != "" {
			out.Title = s
			delete(raw, k)
			break
		}
	}

	out.Status, _ = stringField(raw, "status")
	if out.Status == "" {
		for _, k := range doneKeys {
			var done bool
			if v, ok := raw[k]; ok && json.Unmarshal(v, &done) == nil {
				out.Status = "todo"
				if done {
					out.Status = "done"
				}
				delete(raw, k)
				break
			}
		}
	}
	out.Priority, _ = stringField(raw, "priority")

	if s, ok := stringField(raw, "created_at"); ok && s != "" {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("remote record %d: bad created_at: %w", id, err)
		}
		out.CreatedAt = ts
	}

	for _, k := range []string{"id", "title", "status", "priority", "created_at"} {
		delete(raw, k)
	}
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out.Extra[k] = s
			continue
		}
		if string(v) != "null" && len(v) > 0 && v[0] != '{' && v[0] != '[' {
			out.Extra[k] = string(v)
		}
	}
	if len(out.Extra) == 0 {
		out.Extra = nil
	}

	*r = out
	return nil
}

// Record normalizes the payload into a fully synced local record whose
// local id defaults to the server id.
func (r RemoteRecord) Record() Record {
	id := r.ID
	rec := Record{
		LocalID:   id,
		ServerID:  &id,
		Title:     r.Title,
		Status:    r.Status,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt.UTC(),
		Pending:   PendingNone,
	}
	if len(r.Extra) > 0 {
		rec.Attrs = maps.Clone(r.Extra)
	}
	return rec
}

// Records normalizes a list response.
func Records(remote []RemoteRecord) []Record {
	out := make([]Record, 0, len(remote))
	for _, r := range remote {
		out = append(out, r.Record())
	}
	return out
}

func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// parseID accepts numeric ids as well as numeric strings.
func parseID(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("remote record id %s is not a number", raw)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("remote record id %q is not a number: %w", s, err)
	}
	return n, nil
}
