// Package client talks to the remote collection API.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface): Ping, List,
//     Create, Update and Delete of the records of one scope.
//  2. A REST implementation (see RESTClient) over net/http. Requests are
//     authorized with a bearer token read from a JWT file (see
//     NewFileTokenSource) and creates carry an Idempotency-Key header so a
//     retried push does not create the record twice.
//
// # Routes
//
//	GET    /health
//	GET    /clients/{client}/{resource}
//	POST   /clients/{client}/{resource}
//	PUT    /clients/{client}/{resource}/{id}
//	DELETE /clients/{client}/{resource}/{id}
//
// # Error Handling
//
// Failures are mapped to sentinel errors that callers match with errors.Is:
// ErrUnavailable (transport errors, timeouts, 5xx), ErrUnauthorized (401, 403,
// missing or expired token), ErrNotFound (404) and ErrRejected (other 4xx).
// ErrUnavailable is the signal to fall back to the offline store.
package client
