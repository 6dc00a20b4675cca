// Package command defines the lockbox CLI using urfave/cli/v2.
//
// Every data command opens a session: configuration is merged from
// defaults, the YAML file named by --config, LOCKBOX_* variables and flags;
// the key material is loaded from the vault (created on first use); and the
// storage engine is initialized, which applies pending migrations. The
// engine is closed by a shutdown hook when the command returns or the
// process is interrupted.
//
//   - root.go: App, global flags
//   - session.go: configuration, vault and engine wiring
//   - entry.go: init, set, get, has, delete, keys, clear
//   - backup.go: backup create, restore, list, delete
//   - system.go: status, stats, version
//   - config.go: config show, validate
//   - shell.go: interactive shell over the commands above
//   - migrations.go: the shipped schema migrations
package command
