// celltrace-db is a CLI tool for inspecting and validating the built-in
// battery pack signal database.
package main

import (
	"fmt"
	"os"

	"github.com/celltrace/celltrace-go/cmd/celltrace-db/commands"
)

const (
	exitSuccess      = 0
	exitCommandError = 1
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitCommandError)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var exitCode int
	switch cmd {
	case "list":
		exitCode = commands.RunList(args, os.Stdout, os.Stderr)
	case "show":
		exitCode = commands.RunShow(args, os.Stdout, os.Stderr)
	case "validate":
		exitCode = commands.RunValidate(args, os.Stdout, os.Stderr)
	case "help", "-h", "--help":
		printUsage()
		exitCode = exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		exitCode = exitCommandError
	}

	os.Exit(exitCode)
}

func printUsage() {
	fmt.Println(`celltrace-db - Battery pack signal database tool

Usage:
  celltrace-db <command> [options] [args...]

Commands:
  list       List all messages in the database
  show       Display a message and its signals
  validate   Check the database against its integrity constraints

Options:
  -h, --help   Show this help message

Examples:
  celltrace-db list
  celltrace-db list --sender BMS
  celltrace-db show PACK_MSG
  celltrace-db show 0xB077
  celltrace-db show --format json CELL_1x1_MSG
  celltrace-db validate --strict

For command-specific help, run:
  celltrace-db <command> --help`)
}
