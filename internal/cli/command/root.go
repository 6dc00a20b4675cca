package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lockbox-go/internal/cli/output"
	"github.com/yndnr/lockbox-go/internal/infra/buildinfo"
	"github.com/yndnr/lockbox-go/internal/infra/shutdown"
)

// Metadata keys.
const (
	shutdownKey = "shutdown"
)

// closeTimeout bounds the cleanup hooks run when a command exits.
const closeTimeout = 10 * time.Second

// App creates the CLI application.
func App() *cli.App {
	h := shutdown.NewHandler(closeTimeout)

	app := &cli.App{
		Name:                 "lockbox",
		Usage:                "Encrypted, versioned local key-value store",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			InitCommand(),
			SetCommand(),
			GetCommand(),
			HasCommand(),
			DeleteCommand(),
			KeysCommand(),
			ClearCommand(),
			StatusCommand(),
			StatsCommand(),
			BackupCommand(),
			ConfigCommand(),
			ShellCommand(),
			VersionCommand(),
		},
		Metadata: map[string]any{
			shutdownKey: h,
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
		After: func(c *cli.Context) error {
			return h.Shutdown()
		},
	}

	return app
}

// Run runs the application with a context cancelled by SIGINT or SIGTERM.
func Run(args []string) error {
	app := App()
	ctx, stop := shutdownHandler(app).Context(context.Background())
	defer stop()
	return app.RunContext(ctx, args)
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"LOCKBOX_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Directory holding the store (default: platform data directory)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log at debug level",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	ConfigFile string
	DataDir    string

	Output output.Format
	Wide   bool

	Verbose bool
}

// ParseGlobalFlags extracts global flags from context. An invalid output
// format falls back to table; App rejects it before any action runs.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		format = output.FormatTable
	}
	return &GlobalFlags{
		ConfigFile: c.String("config"),
		DataDir:    c.String("data-dir"),
		Output:     format,
		Wide:       c.Bool("wide"),
		Verbose:    c.Bool("verbose"),
	}
}

// Formatter returns the formatter selected by the global flags.
func (f *GlobalFlags) Formatter() output.Formatter {
	return output.NewFormatter(f.Output, f.Wide)
}

func shutdownHandler(app *cli.App) *shutdown.Handler {
	if h, ok := app.Metadata[shutdownKey].(*shutdown.Handler); ok {
		return h
	}
	return nil
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
