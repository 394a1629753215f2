package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskwire/deskwire/internal/attachment"
)

func newFetchCommand() *cobra.Command {
	var (
		refID   string
		refURL  string
		refName string
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download an attachment through the retrieval cascade",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, tokens, err := bootstrap()
			if err != nil {
				return err
			}
			retriever := attachment.NewRetriever(logger, cfg.API.Origin, tokens)
			ref := attachment.Ref{
				ID:       refID,
				URL:      refURL,
				Filename: refName,
			}
			path, dl, err := retriever.SaveTo(cmd.Context(), ref, outDir)
			if err != nil {
				return fmt.Errorf("attachment could not be retrieved: %w", err)
			}
			if dl.LinkOnly {
				fmt.Printf("no authorized copy available; open directly: %s\n", dl.URL)
				return nil
			}
			fmt.Printf("saved %s (%d bytes)\n", path, dl.Size)
			return nil
		},
	}
	cmd.Flags().StringVar(&refID, "id", "", "attachment id for the secure endpoint")
	cmd.Flags().StringVar(&refURL, "url", "", "direct attachment url")
	cmd.Flags().StringVar(&refName, "name", "", "fallback filename")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	return cmd
}
