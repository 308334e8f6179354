// Package scope identifies one locally mirrored collection: a resource kind
// under a parent client. Each scope is stored under its own KV key, so
// operations on different scopes never touch the same entry.
package scope

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/bizkeeper/internal/common"
)

// Kind is a resource collection exposed by the remote API.
type Kind string

const (
	KindTasks     Kind = "tasks"
	KindNotes     Kind = "notes"
	KindFiles     Kind = "files"
	KindChecklist Kind = "checklist"
)

// Kinds lists every supported resource kind.
var Kinds = []Kind{KindTasks, KindNotes, KindFiles, KindChecklist}

// KeyPrefix starts every storage key; listing keys under KeyPrefix+":"
// enumerates the cached scopes.
const KeyPrefix = "offline"

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Scope struct {
	ClientID string
	Kind     Kind
}

// New builds and validates a scope.
func New(clientID string, kind string) (Scope, error) {
	s := Scope{ClientID: strings.TrimSpace(clientID), Kind: Kind(strings.ToLower(strings.TrimSpace(kind)))}
	if err := Validate(s); err != nil {
		return Scope{}, err
	}
	return s, nil
}

func Validate(s Scope) error {
	if !clientIDPattern.MatchString(s.ClientID) {
		return fmt.Errorf("%w: client id %q must be 1-64 letters, digits, '-' or '_'", common.ErrorIncorrectScope, s.ClientID)
	}
	for _, k := range Kinds {
		if s.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown resource %q", common.ErrorIncorrectScope, s.Kind)
}

// StorageKey is the KV key holding the scope's JSON array,
// e.g. "offline:tasks:12".
func (s Scope) StorageKey() string {
	return KeyPrefix + ":" + string(s.Kind) + ":" + s.ClientID
}

// ParseStorageKey reverses StorageKey.
func ParseStorageKey(key string) (Scope, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != KeyPrefix {
		return Scope{}, fmt.Errorf("%w: malformed storage key %q", common.ErrorIncorrectScope, key)
	}
	return New(parts[2], parts[1])
}

// CollectionPath is the REST path of the collection, e.g. "/clients/12/tasks".
func (s Scope) CollectionPath() string {
	return "/clients/" + s.ClientID + "/" + string(s.Kind)
}

func (s Scope) String() string {
	return string(s.Kind) + "@" + s.ClientID
}
