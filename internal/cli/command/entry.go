package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lockbox-go/internal/cli/output"
)

// InitCommand creates the store and its key material if absent and runs
// pending migrations.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Create or open the store and apply pending migrations",
		Action: runInit,
	}
}

func runInit(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		fmt.Fprintf(s.out, "Store ready at %s (schema version %d, key %s)\n",
			s.location(), s.engine.Version(), s.keys.Fingerprint())
		return nil
	})
}

// SetCommand stores a JSON value.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a JSON value under KEY",
		ArgsUsage: "KEY JSON",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "string",
				Aliases: []string{"s"},
				Usage:   "Store the argument as a JSON string instead of parsing it",
			},
		},
		Action: runSet,
	}
}

func runSet(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected KEY and JSON arguments, got %d", c.NArg())
	}
	key, arg := c.Args().Get(0), c.Args().Get(1)

	var value json.RawMessage
	if c.Bool("string") {
		raw, err := json.Marshal(arg)
		if err != nil {
			return err
		}
		value = raw
	} else {
		if !json.Valid([]byte(arg)) {
			return fmt.Errorf("value is not valid JSON (use --string to store text): %s", arg)
		}
		value = json.RawMessage(arg)
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		return s.engine.Save(ctx, key, value)
	})
}

// GetCommand prints a stored value.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the value stored under KEY",
		ArgsUsage: "KEY",
		Action:    runGet,
	}
}

func runGet(c *cli.Context) error {
	key, err := oneArg(c, "KEY")
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		var value json.RawMessage
		found, err := s.engine.Load(ctx, key, &value)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %q not found", key)
		}
		if s.flags.Output == output.FormatTable {
			_, err := fmt.Fprintln(s.out, string(value))
			return err
		}
		return s.print(value)
	})
}

// HasCommand reports whether a key exists.
func HasCommand() *cli.Command {
	return &cli.Command{
		Name:      "has",
		Usage:     "Report whether KEY exists",
		ArgsUsage: "KEY",
		Action:    runHas,
	}
}

func runHas(c *cli.Context) error {
	key, err := oneArg(c, "KEY")
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		ok, err := s.engine.Contains(ctx, key)
		if err != nil {
			return err
		}
		if s.flags.Output == output.FormatTable {
			_, err := fmt.Fprintln(s.out, ok)
			return err
		}
		return s.print(map[string]bool{"exists": ok})
	})
}

// DeleteCommand removes a key.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Remove KEY (absent keys are ignored)",
		ArgsUsage: "KEY",
		Action:    runDelete,
	}
}

func runDelete(c *cli.Context) error {
	key, err := oneArg(c, "KEY")
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		return s.engine.Delete(ctx, key)
	})
}

// KeysCommand lists the stored keys.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:    "keys",
		Aliases: []string{"ls"},
		Usage:   "List stored keys",
		Action:  runKeys,
	}
}

func runKeys(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		keys, err := s.engine.Keys(ctx)
		if err != nil {
			return err
		}
		return s.printList("KEY", keys)
	})
}

// ClearCommand removes every entry. The schema version is kept.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every entry (backups are kept)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip confirmation",
			},
		},
		Action: runClear,
	}
}

func runClear(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		if !c.Bool("yes") {
			ok, err := confirm(c, fmt.Sprintf("Remove every entry in %s?", s.location()))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(s.out, "Cancelled.")
				return nil
			}
		}
		return s.engine.Clear(ctx)
	})
}

func oneArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument, got %d", name, c.NArg())
	}
	return c.Args().First(), nil
}
