package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/service"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Stage a transfer between two payment accounts",
	Long: `Stage a transfer between two payment accounts. Both legs share one key and
are written to the outbox in one transaction. Amounts are recorded as given.`,
	RunE: runTransfer,
}

func init() {
	transferCmd.Flags().String("id", "", "Transfer key (generated when empty)")
	transferCmd.Flags().String("from", "", "Sender payment account id")
	transferCmd.Flags().String("to", "", "Recipient payment account id")
	transferCmd.Flags().String("from-category", "", "Category of the sender leg")
	transferCmd.Flags().String("to-category", "", "Category of the recipient leg (sender category when empty)")
	transferCmd.Flags().String("amount", "", "Amount taken from the sender")
	transferCmd.Flags().String("to-amount", "", "Amount credited to the recipient (same as amount when empty)")
	transferCmd.Flags().String("day", "", "Operation day (yyyy-MM-dd, today when empty)")
	transferCmd.Flags().String("comment", "", "Comment appended to both legs")
	transferCmd.Flags().String("correlation-id", "", "Correlation id (transfer key when empty)")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}

	amount, err := parseAmount(flag("amount"))
	if err != nil {
		return err
	}
	toAmount := amount
	if v := flag("to-amount"); v != "" {
		if toAmount, err = parseAmount(v); err != nil {
			return err
		}
	}
	day, err := parseDay(flag("day"))
	if err != nil {
		return err
	}
	toCategory := flag("to-category")
	if toCategory == "" {
		toCategory = flag("from-category")
	}

	sender := models.FinancialTransaction{
		PaymentAccountID: flag("from"),
		CategoryID:       flag("from-category"),
		Amount:           amount,
		OperationDay:     day,
		Comment:          flag("comment"),
	}
	recipient := models.FinancialTransaction{
		PaymentAccountID: flag("to"),
		CategoryID:       toCategory,
		Amount:           toAmount,
		OperationDay:     day,
		Comment:          flag("comment"),
	}

	return withPaymentService(cmd.Context(), func(payments *service.PaymentService) error {
		op, err := payments.Transfer(cmd.Context(), sender, recipient, flag("id"), flag("correlation-id"))
		if err != nil {
			return err
		}

		fmt.Printf("Transfer %s staged:\n", op.Key)
		for _, leg := range op.PaymentOperations {
			fmt.Printf("  %-24s  amount=%s  comment=%q\n", leg.PaymentAccountID, leg.Amount, leg.Comment)
		}
		return nil
	})
}
