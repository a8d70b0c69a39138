package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tosin2013/dirigent/pkg/cache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent directive cache",
	}
	cmd.AddCommand(newCachePurgeCommand())
	return cmd
}

func newCachePurgeCommand() *cobra.Command {
	var cacheDB string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries from a SQLite cache database",
		Example: `  dirigent cache purge --cache-db ~/.dirigent/cache.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cacheDB == "" {
				return fmt.Errorf("--cache-db is required")
			}
			store, err := cache.OpenSQLiteCache(cmd.Context(), cache.SQLiteConfig{Path: cacheDB})
			if err != nil {
				return fmt.Errorf("open cache database: %w", err)
			}
			defer store.Close()

			removed, err := store.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("purged %d expired entries\n", removed)
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDB, "cache-db", "", "SQLite cache database path")
	return cmd
}
