package cli

import (
	"bufio"
	"context"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/flagx"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	List(ctx context.Context) error
	Add(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	SetStatus(ctx context.Context, args []string) error
	Done(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Clear(ctx context.Context) error
	Pending(ctx context.Context) error
	Sync(ctx context.Context) error
	Scopes(ctx context.Context) error
	SwitchScope(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  (l)ist                                  list records of the current scope
  add <title> [priority] [name=value...]  add a record
  edit <id> <title> [priority] [name=value...]
  status <id> <status>                    set the status of a record
  done <id>                               mark a record done
  remove <id>                             remove a record
  clear                                   remove every done record
  pending                                 show changes waiting for sync
  sync                                    push pending changes now
  scopes                                  list cached scopes
  scope <client> <resource>               switch scope (tasks, notes, files, checklist)
  exit | quit`

// runREPL reads commands from scanner until EOF, "exit" or "quit".
//
// The prompt shows statusFn (connectivity mode and scope). Arguments are
// split with flagx.SplitLine, so quoted titles may contain spaces. Errors
// returned by handlers are ignored here; handlers report them to the user.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("bk> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := flagx.SplitLine(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)

		case "l", "list":
			_ = a.List(ctx)

		case "add":
			_ = a.Add(ctx, args)

		case "edit":
			_ = a.Edit(ctx, args)

		case "status":
			_ = a.SetStatus(ctx, args)

		case "done":
			_ = a.Done(ctx, args)

		case "remove", "rm":
			_ = a.Remove(ctx, args)

		case "clear":
			_ = a.Clear(ctx)

		case "pending":
			_ = a.Pending(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "scopes":
			_ = a.Scopes(ctx)

		case "scope":
			_ = a.SwitchScope(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
