// Package cli implements the duck-explore command line client.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultHost = "http://localhost:8080"

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if getOutputFormat(rootCmd) == outputJSON {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.HTTPStatus
				errObj["code"] = apiErr.Code
			}
			_ = PrintJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		host    string
		output  outputFlag
		profile string
	)
	client := NewClient(defaultHost)

	rootCmd := &cobra.Command{
		Use:           "duck-explore",
		Short:         "duck-explore CLI",
		Long:          "Command-line client for duck-explore query jobs and job status rows.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadOrNewUserConfig()
			p, err := cfg.ActiveProfile(profile)
			if err != nil {
				return err
			}

			// Precedence: flag > env > profile > default.
			if !cmd.Flags().Changed("host") {
				switch {
				case os.Getenv("DUCK_EXPLORE_HOST") != "":
					host = os.Getenv("DUCK_EXPLORE_HOST")
				case p.Host != "":
					host = p.Host
				}
			}
			if !cmd.Flags().Changed("output") {
				switch {
				case os.Getenv("DUCK_EXPLORE_OUTPUT") != "":
					if err := output.Set(os.Getenv("DUCK_EXPLORE_OUTPUT")); err != nil {
						return fmt.Errorf("DUCK_EXPLORE_OUTPUT: %w", err)
					}
				case p.Output != "":
					if err := output.Set(p.Output); err != nil {
						return fmt.Errorf("profile output: %w", err)
					}
				default:
					output = outputFlag(defaultOutputFor(cmd.OutOrStdout()))
				}
			}

			base, err := normalizeHost(host)
			if err != nil {
				return err
			}
			client.BaseURL = base
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", defaultHost, "API host URL")
	rootCmd.PersistentFlags().VarP(&output, "output", "o", "Output format (table, json); defaults to table on a terminal")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newJobCmd(client))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
