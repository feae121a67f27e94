package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	db := &cobra.Command{
		Use:   "db",
		Short: "Inspect the local backend database",
	}
	db.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the backend path and schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client) error {
				db := c.Store.DB()
				v, err := db.SchemaStatus()
				if err != nil {
					return err
				}
				if jsonOutput {
					return outputJSON(map[string]any{
						"path":    db.Path(),
						"version": v.Version,
						"dirty":   v.Dirty,
					})
				}
				fmt.Printf("Path:    %s\n", db.Path())
				fmt.Printf("Version: %d\n", v.Version)
				fmt.Printf("Dirty:   %v\n", v.Dirty)
				return nil
			})
		},
	})
	return db
}
