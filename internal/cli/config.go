package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ciphora configuration",
		Long: `Manage configuration settings.

Settings are addressed by dotted keys matching the YAML file, for example
generator.length or ui.show_passwords. Configuration is stored in
~/.config/ciphora/config.yaml by default; CIPHORA_* environment variables
override it.

Example:
  ciphora config path                      # Show config file path
  ciphora config get clipboard_ttl         # Get clipboard timeout
  ciphora config set clipboard_ttl 60s     # Set clipboard timeout
  ciphora config get                       # Show all configuration`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Get configuration value(s)",
			Args:  cobra.MaximumNArgs(1),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				if len(args) == 0 {
					cfg := a.settings.Get()
					out, err := yaml.Marshal(&cfg)
					if err != nil {
						return fmt.Errorf("failed to render config: %w", err)
					}
					_, err = cmd.OutOrStdout().Write(out)
					return err
				}

				value, err := a.settings.Lookup(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set configuration value",
			Args:  cobra.ExactArgs(2),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				if err := a.settings.Update(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s updated in %s\n", args[0], a.settings.Path())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file path",
			Args:  cobra.NoArgs,
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.settings.Path())
				return nil
			}),
		},
	)
	return cmd
}
