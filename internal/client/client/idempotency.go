package client

import (
	"strconv"

	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/google/uuid"
)

// idempotencyNamespace is the UUID namespace for create keys.
var idempotencyNamespace = uuid.MustParse("5b0f2c52-7c3e-4f0e-9a57-3f1f6f1d2a10")

// IdempotencyKey derives a stable key for the remote create of an offline
// record, so every retry of the same push sends the same key.
func IdempotencyKey(sc scope.Scope, localID int64) string {
	name := sc.StorageKey() + "/" + strconv.FormatInt(localID, 10)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
