// Package cli provides the interactive BizKeeper command-line client.
//
// It wires configuration, the offline store, the REST client and an
// interactive REPL that keeps working while the API is unreachable. A
// background watcher pings the API; when it comes back, pending changes are
// synced without user action. A sync loop also runs on the configured
// interval.
//
// Key features:
//   - List, add, edit, complete and remove records of one scope
//   - Clear completed records
//   - Inspect and push pending changes
//   - Switch between scopes (client and resource kind)
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
