package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and maintain the similarity index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print similarity index statistics",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist the similarity index to disk",
	Args:  cobra.NoArgs,
	RunE:  runIndexSave,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the similarity index from stored faces",
	Long: `Rebuild the similarity index from the face store.

The index is cleared and every stored face embedding is re-added. This
reclaims space held by removed entries and repairs an index that has
drifted from the face store.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexSaveCmd)
	indexCmd.AddCommand(indexRebuildCmd)
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stats := a.engine.IndexStats()

	fmt.Printf("Backend:   %s\n", stats.Type)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	fmt.Printf("Vectors:   %d\n", stats.Size)
	if stats.Removed > 0 {
		fmt.Printf("Removed:   %d\n", stats.Removed)
	}
	if stats.Type == "ivfpq" {
		fmt.Printf("Trained:   %t\n", stats.Trained)
		fmt.Printf("Clusters:  %d\n", stats.Clusters)
		fmt.Printf("Probe:     %d\n", stats.Probe)
		fmt.Printf("Buffered:  %d\n", stats.Buffered)
		fmt.Printf("Rebuilds:  %d\n", stats.Rebuilds)
	}

	return nil
}

func runIndexSave(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Index.Path == "" {
		return fmt.Errorf("no index path configured, set FACEID_INDEX_PATH")
	}
	if err := a.engine.SaveIndex(ctx, a.cfg.Index.Path); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}

	fmt.Printf("Index saved to %s\n", a.cfg.Index.Path)
	return nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	count, err := a.engine.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	fmt.Printf("Reindexed %d faces\n", count)
	a.saveIndex(ctx)
	return nil
}
