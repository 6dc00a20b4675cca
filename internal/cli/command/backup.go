package command

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/urfave/cli/v2"
)

// BackupCommand returns the backup subcommand group.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage named backups",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Snapshot the store under NAME (default: a new ULID)",
				ArgsUsage: "[NAME]",
				Action:    backupCreate,
			},
			{
				Name:      "restore",
				Usage:     "Replace the store with a backup",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "yes",
						Aliases: []string{"y"},
						Usage:   "Skip confirmation",
					},
				},
				Action: backupRestore,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List backups",
				Action:  backupList,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a backup",
				ArgsUsage: "NAME",
				Action:    backupDelete,
			},
		},
	}
}

func backupCreate(c *cli.Context) error {
	if c.NArg() > 1 {
		return fmt.Errorf("expected at most one NAME argument, got %d", c.NArg())
	}
	name := c.Args().First()
	if name == "" {
		name = ulid.Make().String()
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		if err := s.engine.CreateBackup(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Backup %s created\n", name)
		return nil
	})
}

func backupRestore(c *cli.Context) error {
	name, err := oneArg(c, "NAME")
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		if !c.Bool("yes") {
			ok, err := confirm(c, fmt.Sprintf("Replace every entry in %s with backup %s?", s.location(), name))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(s.out, "Cancelled.")
				return nil
			}
		}
		if err := s.engine.RestoreBackup(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Backup %s restored (schema version %d)\n", name, s.engine.Version())
		return nil
	})
}

type backupRow struct {
	Name    string     `json:"name"`
	Size    int64      `json:"size" table:"bytes"`
	Created *time.Time `json:"created,omitempty"`
}

func backupList(c *cli.Context) error {
	return withSession(c, func(ctx context.Context, s *session) error {
		names, err := s.engine.ListBackups(ctx)
		if err != nil {
			return err
		}

		rows := make([]backupRow, 0, len(names))
		for _, name := range names {
			size, err := s.engine.BackupSize(ctx, name)
			if err != nil {
				return err
			}
			rows = append(rows, backupRow{
				Name:    name,
				Size:    int64(size),
				Created: createdAt(name),
			})
		}
		return s.print(rows)
	})
}

// createdAt recovers the creation time of backups named by a ULID.
func createdAt(name string) *time.Time {
	id, err := ulid.ParseStrict(name)
	if err != nil {
		return nil
	}
	t := ulid.Time(id.Time()).UTC()
	return &t
}

func backupDelete(c *cli.Context) error {
	name, err := oneArg(c, "NAME")
	if err != nil {
		return err
	}

	return withSession(c, func(ctx context.Context, s *session) error {
		return s.engine.DeleteBackup(ctx, name)
	})
}
