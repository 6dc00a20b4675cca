package command

import (
	"bufio"
	"context"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lockbox-go/internal/cli/repl"
)

// ShellCommand starts an interactive shell. Each line runs as a lockbox
// command with the shell's global flags.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:   "shell",
		Usage:  "Run commands interactively",
		Action: runShell,
	}
}

func runShell(c *cli.Context) error {
	globals := globalArgs(ParseGlobalFlags(c))

	sh, err := repl.New(repl.Config{
		Input:    c.App.Reader,
		Output:   stdout(c),
		Commands: commandNames(App().Commands),
		Exec: func(ctx context.Context, args []string, in *bufio.Reader) error {
			if args[0] == "shell" {
				return nil
			}
			app := App()
			app.Writer = stdout(c)
			app.ErrWriter = stderr(c)
			app.Reader = in
			app.ExitErrHandler = func(*cli.Context, error) {}
			full := append(append([]string{c.App.Name}, globals...), args...)
			return app.RunContext(ctx, full)
		},
	})
	if err != nil {
		return err
	}
	return sh.Run(c.Context)
}

// globalArgs renders flags back into command-line form.
func globalArgs(f *GlobalFlags) []string {
	var args []string
	if f.ConfigFile != "" {
		args = append(args, "--config", f.ConfigFile)
	}
	if f.DataDir != "" {
		args = append(args, "--data-dir", f.DataDir)
	}
	args = append(args, "--output", string(f.Output))
	if f.Wide {
		args = append(args, "--wide")
	}
	if f.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

// commandNames lists commands and their subcommands as space-joined paths.
func commandNames(cmds []*cli.Command) []string {
	var names []string
	for _, cmd := range cmds {
		if cmd.Name == "shell" {
			continue
		}
		names = append(names, cmd.Name)
		for _, sub := range commandNames(cmd.Subcommands) {
			names = append(names, strings.Join([]string{cmd.Name, sub}, " "))
		}
	}
	return names
}
