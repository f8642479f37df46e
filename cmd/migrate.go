package cmd

import (
	"context"
	"fmt"

	container "github.com/inference-gateway/chatledger/internal/container"
	storage "github.com/inference-gateway/chatledger/internal/infra/storage"
	cobra "github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations to update the schema to the latest version.

SQLite and PostgreSQL stores apply pending migrations when they are opened,
so this command mostly confirms the schema is current. Migrations are
tracked in the schema_migrations table. The memory backend has no schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetBool("status")
		return withContainer(func(c *container.ServiceContainer) error {
			return runMigrate(cmd, c, status)
		})
	},
}

func init() {
	migrateCmd.Flags().Bool("status", false, "Show migration status without applying migrations")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, c *container.ServiceContainer, status bool) error {
	out := cmd.OutOrStdout()
	ctx := context.Background()

	sqlStore, ok := c.GetStore().(*storage.SQLStore)
	if !ok {
		fmt.Fprintf(out, "%s storage does not require migrations\n", c.GetStore().Dialect())
		return nil
	}

	if !status {
		applied, err := sqlStore.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		fmt.Fprintf(out, "%s database migrations are up to date (%d applied now)\n", sqlStore.Dialect(), applied)
		return nil
	}

	list, err := sqlStore.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(out, "%s migration status:\n\n", sqlStore.Dialect())
	for _, m := range list {
		state := "pending"
		if m.Applied {
			state = "applied"
			if m.AppliedAt != nil {
				state = "applied " + m.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "  version %s: %s (%s)\n", m.Version, m.Description, state)
	}
	return nil
}
