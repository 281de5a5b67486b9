package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/db"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/repository"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/service"
)

var replayCmd = &cobra.Command{
	Use:   "replay [account-id...]",
	Short: "Rebuild account history and balance from the event streams",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	hb, err := openHandbook(ctx, cfg)
	if err != nil {
		return err
	}
	defer hb.Close()

	clickhouse, err := openClickHouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer clickhouse.Close()

	// Replay never appends, so no dead-letter sink is needed.
	eventStore := db.NewEventStore(pool.Pool, nil)
	historyService := service.NewHistoryService(eventStore, hb.categories, repository.NewHistoryRepository(clickhouse), hb.accounts)

	var failed int
	for _, accountID := range args {
		result, err := historyService.SyncHistory(ctx, accountID)
		if err != nil {
			fmt.Printf("  %-24s  FAILED  %v\n", accountID, err)
			failed++
			continue
		}
		fmt.Printf("  %-24s  streams=%d  records=%d  balance=%s\n",
			result.AccountID, result.Streams, result.Records, result.Balance)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to replay", failed, len(args))
	}
	return nil
}
