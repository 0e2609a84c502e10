package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/agentbridge/internal/config"
	"github.com/flemzord/agentbridge/pkg/app"
	"github.com/spf13/cobra"
)

func configInitCmd() *cobra.Command {
	var (
		output string
		force  bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				output = app.ConfigCandidates()[0]
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			params := config.StarterParams{
				Bind:      "127.0.0.1:8080",
				Providers: []string{config.ProviderAnthropic},
				Tools:     []string{config.ToolBash, config.ToolEdit},
				Ledger:    true,
				LogFormat: config.FormatText,
			}
			if !yes {
				if err := starterForm(&params).Run(); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
				if slices.Contains(params.Providers, config.ProviderVertex) {
					if err := vertexForm(&params).Run(); err != nil {
						return err
					}
				}
			}

			var buf bytes.Buffer
			if err := config.WriteStarter(&buf, params); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o700); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (default: user config directory)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept defaults without prompting")
	return cmd
}

func starterForm(p *config.StarterParams) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&p.Bind).
				Validate(func(s string) error {
					_, _, err := net.SplitHostPort(s)
					return err
				}),
			huh.NewMultiSelect[string]().
				Title("Model providers").
				Options(
					huh.NewOption("Anthropic API", config.ProviderAnthropic),
					huh.NewOption("Amazon Bedrock", config.ProviderBedrock),
					huh.NewOption("Google Vertex AI", config.ProviderVertex),
				).
				Value(&p.Providers).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return errors.New("select at least one provider")
					}
					return nil
				}),
			huh.NewMultiSelect[string]().
				Title("Built-in tools").
				Options(
					huh.NewOption("bash", config.ToolBash),
					huh.NewOption("str_replace_editor", config.ToolEdit),
				).
				Value(&p.Tools),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Persist the run ledger in SQLite?").
				Value(&p.Ledger),
			huh.NewConfirm().
				Title("Protect the admin API with a bearer token?").
				Description("Read from AGENTBRIDGE_ADMIN_TOKEN at startup.").
				Value(&p.AdminToken),
			huh.NewSelect[string]().
				Title("Log format").
				Options(huh.NewOptions(config.FormatText, config.FormatJSON, config.FormatPretty)...).
				Value(&p.LogFormat),
		),
	)
}

func vertexForm(p *config.StarterParams) *huh.Form {
	notEmpty := func(s string) error {
		if s == "" {
			return errors.New("required")
		}
		return nil
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Vertex region").Value(&p.VertexRegion).Validate(notEmpty),
			huh.NewInput().Title("Vertex project ID").Value(&p.VertexProject).Validate(notEmpty),
		),
	)
}
