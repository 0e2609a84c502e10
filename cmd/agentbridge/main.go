// Package main is the entry point for the agentbridge CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/flemzord/agentbridge/internal/core"
	"github.com/flemzord/agentbridge/pkg/app"
	"github.com/spf13/cobra"

	// Compiled-in modules.
	_ "github.com/flemzord/agentbridge/internal/gateway"
	_ "github.com/flemzord/agentbridge/internal/session"
	_ "github.com/flemzord/agentbridge/modules/ledger/sqlite"
	_ "github.com/flemzord/agentbridge/modules/provider/anthropic"
	_ "github.com/flemzord/agentbridge/modules/tool/bash"
	_ "github.com/flemzord/agentbridge/modules/tool/edit"
	_ "github.com/flemzord/agentbridge/modules/tool/mcp"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentbridge",
		Short:         "WebSocket gateway for tool-using LLM agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), serviceCmd())
	return root
}

func runParams(cfgPath string) app.RunParams {
	return app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "agentbridge %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start agentbridge with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(runParams(cfgPath))
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(configCheckCmd(), configInitCmd())
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and provision every module",
		Long:  "Validate configuration and provision every module. A path of - reads the configuration from standard input.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(args[0])
			params.LogOutput = io.Discard
			inst, err := app.New(context.Background(), params)
			if err != nil {
				return err
			}
			defer inst.Stop()

			out := cmd.OutOrStdout()
			ids := inst.Modules()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}
