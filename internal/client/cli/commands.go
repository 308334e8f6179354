package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/bizkeeper/internal/client/client"
	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/dmitrijs2005/bizkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/bizkeeper/internal/client/scope"
	"github.com/dmitrijs2005/bizkeeper/internal/client/services"
	"github.com/dmitrijs2005/bizkeeper/internal/client/store"
)

var errUsage = errors.New("usage")

func usage(line string) error {
	printlnFn("Usage:", line)
	return errUsage
}

func (a *App) List(ctx context.Context) error {
	res, err := a.collection().Load(ctx)
	return a.report(ctx, res, err)
}

func (a *App) Add(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return usage("add <title> [priority] [name=value...]")
	}
	d, err := parseDraft(args)
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	res, err := a.collection().Add(ctx, d)
	return a.report(ctx, res, err)
}

func (a *App) Edit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usage("edit <id> <title> [priority] [name=value...]")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	d, err := parseDraft(args[1:])
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	res, err := a.collection().Update(ctx, id, d)
	return a.report(ctx, res, err)
}

func (a *App) SetStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("status <id> <status>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := a.collection().SetStatus(ctx, id, args[1])
	return a.report(ctx, res, err)
}

func (a *App) Done(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("done <id>")
	}
	return a.SetStatus(ctx, []string{args[0], "done"})
}

func (a *App) Remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("remove <id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res, err := a.collection().Remove(ctx, id)
	return a.report(ctx, res, err)
}

func (a *App) Clear(ctx context.Context) error {
	res, err := a.collection().ClearCompleted(ctx)
	return a.report(ctx, res, err)
}

func (a *App) Pending(ctx context.Context) error {
	records := a.collection().Pending(ctx)
	if len(records) == 0 {
		printlnFn("Nothing to sync.")
		return nil
	}
	printlnFn(renderRecords(records, terminalWidth()))
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	res, err := a.syncer().Sync(ctx)

	printlnFn(fmt.Sprintf("Synced: %d created, %d updated, %d deleted, %d failed.",
		res.Created, res.Updated, res.Deleted, res.Failed))

	if res.Offline {
		a.setMode(ctx, ModeOffline)
		printlnFn("Server unavailable, pending changes are kept for the next sync.")
	} else if res.Pulled >= 0 {
		a.setMode(ctx, ModeOnline)
	}
	if err != nil && !res.Offline {
		printlnFn("Error:", err)
	}
	return err
}

// Scopes lists the scopes with a cached collection in the offline storage.
func (a *App) Scopes(ctx context.Context) error {
	lister, ok := a.kv.(kv.Lister)
	if !ok {
		printlnFn("The storage backend cannot list scopes.")
		return nil
	}

	keys, err := lister.Keys(ctx, scope.KeyPrefix+":")
	if err != nil {
		printlnFn("Error:", err)
		return err
	}

	current := a.collection().Scope()
	var lines []string
	for _, key := range keys {
		sc, err := scope.ParseStorageKey(key)
		if err != nil {
			a.log.Debug(ctx, "skipping foreign key", "key", key)
			continue
		}
		mark := "  "
		if sc == current {
			mark = "* "
		}
		lines = append(lines, fmt.Sprintf("%s%s %s", mark, sc.ClientID, sc.Kind))
	}

	if len(lines) == 0 {
		printlnFn("No cached scopes.")
		return nil
	}
	slices.Sort(lines)
	for _, l := range lines {
		printlnFn(l)
	}
	return nil
}

func (a *App) SwitchScope(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("scope <client> <resource>")
	}
	sc, err := scope.New(args[0], args[1])
	if err != nil {
		printlnFn("Error:", err)
		return err
	}
	a.setScope(sc)
	printlnFn("Switched to", sc.String())
	return a.List(ctx)
}

// report prints the outcome of a collection operation followed by the
// resulting records.
func (a *App) report(ctx context.Context, res services.Result, err error) error {
	if res.Offline {
		a.setMode(ctx, ModeOffline)
		printlnFn("Server unavailable, showing offline data. Changes will sync when it is back.")
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotPersisted):
		printlnFn("Warning: the change could not be saved locally:", err)
	case errors.Is(err, client.ErrRejected):
		printlnFn("The server rejected the change:", err)
	default:
		printlnFn("Error:", err)
	}

	printlnFn(renderRecords(res.Records, terminalWidth()))
	return err
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		printlnFn("Invalid id:", s)
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseDraft reads "<title> [priority] [name=value...]". The priority is the
// first argument after the title that is not a name=value pair.
func parseDraft(args []string) (models.Draft, error) {
	d := models.Draft{Title: strings.TrimSpace(args[0])}

	rest := args[1:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		d.Priority = rest[0]
		rest = rest[1:]
	}

	attrs, err := models.ParseAttrs(rest)
	if err != nil {
		return models.Draft{}, err
	}
	d.Attrs = attrs
	return d, nil
}
