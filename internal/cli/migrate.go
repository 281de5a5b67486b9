package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL migrations and create the ClickHouse history table",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("skip-history", false, "Do not touch ClickHouse")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if err := db.Migrate(cfg.Postgres.URL); err != nil {
		return err
	}
	fmt.Println("PostgreSQL migrations applied.")

	if skip, _ := cmd.Flags().GetBool("skip-history"); skip {
		return nil
	}

	client, err := openClickHouse(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	fmt.Println("ClickHouse history table ready.")

	return nil
}
