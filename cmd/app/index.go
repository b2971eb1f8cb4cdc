package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tcross-assistant/internal/config"
	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/vectorstore"
)

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Embed manual text files into the retrieval index",
	Long: `index splits each file into chunks, embeds them with the configured OpenAI
embedding model and stores them in retrieval.index_path. Re-indexing a file
replaces its previous chunks; unchanged chunks are served from the
embedding cache.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath, devMode)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		log := logging.NewWithWriter(cfg.Log, cfg.Runtime.Dev, os.Stderr)

		store, embedder, err := openIndexStore(cfg, log)
		if err != nil {
			return err
		}
		defer store.Close()

		x := vectorstore.NewIndexer(store, embedder, cfg.Retrieval.ChunkSize, cfg.Retrieval.BatchSize, log)
		n, err := x.IndexFiles(cmd.Context(), args)
		if err != nil {
			return err
		}
		total, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d chunks indexed from %d file(s); index holds %d chunks\n", n, len(args), total)
		return nil
	},
}
