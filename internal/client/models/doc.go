// Package models defines the locally mirrored Record, its sync intent, the
// editable Draft and the REST payload shape it is normalized from.
package models
