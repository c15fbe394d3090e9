package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Collections(ctx context.Context) error
	List(ctx context.Context, collection string) error
	Get(ctx context.Context, collection, id string) error
	Delete(ctx context.Context, collection, id string) error
	Status(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop over the local document store.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF, ctx cancellation, or when
// the user types "exit" or "quit". The prompt shows the connectivity mode
// from statusFn.
//
// Commands:
//   - help                   — show available commands
//   - collections            — list collections with record counts
//   - list <collection>      — list records of one collection
//   - get <collection> <id>  — show one record
//   - del <collection> <id>  — delete one record
//   - status                 — substrate and channel health
//   - exit | quit            — leave the program
//
// Errors returned by command handlers are printed and the loop continues;
// nothing the user types can take the shell down.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		printlnFn(fmt.Sprintf("ce [%s]> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		var err error
		switch parts[0] {
		case "help":
			printlnFn("Available commands: collections, list <col>, get <col> <id>, del <col> <id>, status, exit")

		case "collections":
			err = a.Collections(ctx)

		case "l", "list":
			if len(parts) != 2 {
				printlnFn("Usage: list <collection>")
				continue
			}
			err = a.List(ctx, parts[1])

		case "get":
			if len(parts) != 3 {
				printlnFn("Usage: get <collection> <id>")
				continue
			}
			err = a.Get(ctx, parts[1], parts[2])

		case "del":
			if len(parts) != 3 {
				printlnFn("Usage: del <collection> <id>")
				continue
			}
			err = a.Delete(ctx, parts[1], parts[2])

		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", parts[0])
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
