package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/deadletter"
)

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "Inspect events the pipeline could not deliver",
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parked events, oldest first",
	RunE:  runDeadLettersList,
}

var deadLettersPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every parked event",
	RunE:  runDeadLettersPurge,
}

func init() {
	deadLettersCmd.AddCommand(deadLettersListCmd)
	deadLettersCmd.AddCommand(deadLettersPurgeCmd)

	deadLettersListCmd.Flags().Int("limit", 0, "Show at most this many events (0 shows all)")
}

func runDeadLettersList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := deadletter.Open(config.Load().DeadLetter.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	letters, err := store.List()
	if err != nil {
		return err
	}

	if len(letters) == 0 {
		fmt.Println("No dead letters.")
		return nil
	}

	if limit > 0 && len(letters) > limit {
		letters = letters[:limit]
	}

	fmt.Printf("Dead letters (%d):\n\n", len(letters))
	for _, l := range letters {
		fmt.Printf("  %s  %-8s  %s\n",
			l.FailedAt.Format("2006-01-02 15:04:05"),
			l.Event.EventType,
			l.Event.ID)
		fmt.Printf("    operation=%s  stream=%s\n", l.Event.Payload.Key, l.StreamID)
		fmt.Printf("    error: %s\n\n", l.Error)
	}

	return nil
}

func runDeadLettersPurge(cmd *cobra.Command, args []string) error {
	store, err := deadletter.Open(config.Load().DeadLetter.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Purge()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d dead letters.\n", removed)
	return nil
}
