package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// Migrator is the subset of db.Migrator driven by the migrate command.
type Migrator interface {
	Up(steps int) error
	Down(steps int) error
	Version() (uint, bool, error)
}

// MigrateCommand runs `migrate up|down|version [-steps n]` against m and
// returns the process exit code.
func MigrateCommand(m Migrator, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	steps := fs.Int("steps", 0, "number of migrations to apply; 0 applies all (down requires a positive value)")
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: migrate up|down|version [-steps n]")
		return 2
	}
	action := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	var err error
	switch action {
	case "up":
		err = m.Up(*steps)
	case "down":
		if *steps <= 0 {
			err = errors.New("down requires -steps > 0")
			break
		}
		err = m.Down(*steps)
	case "version":
	default:
		fmt.Fprintf(stderr, "unknown migrate action %q\n", action)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "migrate %s: %v\n", action, err)
		return 1
	}

	version, dirty, err := m.Version()
	if err != nil {
		fmt.Fprintf(stderr, "migrate version: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "version=%d dirty=%t\n", version, dirty)
	return 0
}
