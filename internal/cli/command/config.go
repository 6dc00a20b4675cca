package command

import (
	"fmt"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/lockbox-go/internal/cli/output"
	"github.com/yndnr/lockbox-go/internal/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration (secrets masked)",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the effective configuration",
				Action: configValidate,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	safe := config.Sanitize(cfg)
	flags := ParseGlobalFlags(c)
	w := stdout(c)

	switch flags.Output {
	case output.FormatJSON:
		return flags.Formatter().Format(w, safe)
	case output.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(safe); err != nil {
			return err
		}
		return enc.Close()
	}

	flat, err := flattenConfig(safe)
	if err != nil {
		return err
	}
	return flags.Formatter().Format(w, flat)
}

// flattenConfig renders cfg as dotted keys, with durations in their
// string form.
func flattenConfig(cfg *config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	flat, _ := maps.Flatten(tree, nil, ".")
	return flat, nil
}

func configValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Fprintf(stdout(c), "Configuration is valid (data dir %s)\n", cfg.Storage.DataDir)
	return nil
}
