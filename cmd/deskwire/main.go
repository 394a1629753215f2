// Command deskwire is the terminal client for the helpdesk realtime core:
// it watches live conversations and downloads message attachments.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/deskwire/deskwire/internal/auth"
	"github.com/deskwire/deskwire/internal/config"
	"github.com/deskwire/deskwire/internal/logging"
)

var (
	flagConfig string
	flagToken  string
)

func main() {
	root := &cobra.Command{
		Use:           "deskwire",
		Short:         "Realtime conversation client for the helpdesk backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultConfigPath, "path to config file")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (overrides config)")
	root.AddCommand(newWatchCommand())
	root.AddCommand(newFetchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger, and resolves the credential
// source shared by every command.
func bootstrap() (config.Config, *slog.Logger, auth.TokenSource, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	var tokens auth.TokenSource
	switch {
	case flagToken != "":
		tokens = auth.StaticToken(flagToken)
	case cfg.Auth.Token != "":
		tokens = auth.StaticToken(cfg.Auth.Token)
	case cfg.Auth.TokenFile != "":
		tokens = auth.NewFileToken(cfg.Auth.TokenFile)
	default:
		tokens = auth.StaticToken("")
	}
	return cfg, logger, tokens, nil
}
