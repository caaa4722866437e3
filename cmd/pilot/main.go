// File: cmd/pilot/main.go
/*
Copyright © 2025 Kyle McAllister (xkilldash9x@proton.me)
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode"

	"github.com/xkilldash9x/pilot-cli/cmd"
)

const asciiArt = `
        _ _       _
  _ __ (_) | ___ | |_      "You watch the window,
 | '_ \| | |/ _ \| __|      the model works it."
 | |_) | | | (_) | |_
 | .__/|_|_|\___/ \__|     [ pilot-cli v0.1.0 ]
 |_|

`

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// main is the entry point of the application.
func main() {
	// A context that ends on SIGINT or SIGTERM, so a run in flight stops at
	// the next step boundary and still prints its log.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// If arguments are passed, execute the command directly and exit.
	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil {
			// Ctrl+C mid run surfaces as context.Canceled and is a clean stop,
			// everything else is a failure. cmd.Execute handles the logging.
			if errors.Is(err, context.Canceled) {
				osExit(0)
			}
			osExit(1)
		}
		return
	}

	// -- Interactive Mode --
	fmt.Print(asciiArt)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("pilot > ")
		if !scanner.Scan() {
			break // Exit on EOF (Ctrl+D)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "exit" || line == "quit" {
			break
		}

		executeInteractiveCommand(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}

	fmt.Println("Exiting pilot-cli.")
}

// executeInteractiveCommand parses and runs one line from the interactive
// shell. Each line gets a clean command instance so flag state never leaks
// from one run into the next.
func executeInteractiveCommand(ctx context.Context, line string) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(splitArgs(line))

	// Capture panics so a bad run does not take the shell down with it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "Error: command panicked: %v\n", r)
			}
		}()
		// Errors are logged by the command itself; the shell stays up.
		_ = rootCmd.ExecuteContext(ctx)
	}()
}

// splitArgs splits an interactive line into arguments, honoring double
// quotes so task descriptions survive: run "find the pricing page".
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	inQuote := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case unicode.IsSpace(r) && !inQuote:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}
