package models

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Draft is the user-editable payload of a record, used for offline creates,
// local edits, and the remote create/update request bodies.
type Draft struct {
	Title    string            `json:"title"`
	Status   string            `json:"status,omitempty"`
	Priority string            `json:"priority,omitempty"`
	Attrs    map[string]string `json:"-"`
}

// Apply overwrites the domain fields of r with d. Empty Status and Priority
// leave the current values in place; Attrs are merged key by key.
func (d Draft) Apply(r *Record) {
	r.Title = d.Title
	if d.Status != "" {
		r.Status = d.Status
	}
	if d.Priority != "" {
		r.Priority = d.Priority
	}
	if len(d.Attrs) > 0 {
		if r.Attrs == nil {
			r.Attrs = make(map[string]string, len(d.Attrs))
		}
		maps.Copy(r.Attrs, d.Attrs)
	}
}

// Body flattens the draft into the JSON object sent to the remote API:
// attrs become top-level keys next to title/status/priority.
func (d Draft) Body() map[string]any {
	body := make(map[string]any, len(d.Attrs)+3)
	for k, v := range d.Attrs {
		body[k] = v
	}
	body["title"] = d.Title
	if d.Status != "" {
		body["status"] = d.Status
	}
	if d.Priority != "" {
		body["priority"] = d.Priority
	}
	return body
}

var ErrIncorrectAttr = errors.New("attribute must be name=value")

// ParseAttrs turns "name=value" items into an attrs map. Names are trimmed and
// must be non-empty; values may be empty or contain '='.
func ParseAttrs(items []string) (map[string]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrIncorrectAttr, item)
		}
		attrs[name] = strings.TrimSpace(value)
	}
	return attrs, nil
}
