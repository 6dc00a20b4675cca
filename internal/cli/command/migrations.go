package command

import "github.com/yndnr/lockbox-go/internal/storage/migration"

// Migrations returns the schema migrations shipped with the CLI.
func Migrations() *migration.Registry {
	return migration.MustRegistry(
		migration.Migration{
			Version: 1,
			Name:    "rename old_settings to new_settings",
			Up:      migration.Rename("old_settings", "new_settings"),
		},
		migration.Migration{
			Version: 2,
			Name:    "default theme",
			Up:      migration.SetDefault("theme", "light"),
		},
	)
}
