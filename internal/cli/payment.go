package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/db"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/service"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Stage payment operation events in the outbox",
}

var paymentAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a new payment",
	RunE:  runPaymentAdd,
}

var paymentUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change a recorded payment",
	Long: `Change a recorded payment. The operation flags describe the payment as it
was recorded; the --new-* flags override the fields that change. Moving the
payment to another account or month emits a removal and an addition.`,
	RunE: runPaymentUpdate,
}

var paymentRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a recorded payment",
	RunE:  runPaymentRemove,
}

func init() {
	paymentCmd.AddCommand(paymentAddCmd)
	paymentCmd.AddCommand(paymentUpdateCmd)
	paymentCmd.AddCommand(paymentRemoveCmd)

	for _, cmd := range []*cobra.Command{paymentAddCmd, paymentUpdateCmd, paymentRemoveCmd} {
		addOperationFlags(cmd)
		cmd.Flags().String("correlation-id", "", "Correlation id stored in event metadata")
	}

	paymentUpdateCmd.Flags().String("new-account", "", "New payment account id")
	paymentUpdateCmd.Flags().String("new-category", "", "New category id")
	paymentUpdateCmd.Flags().String("new-amount", "", "New amount")
	paymentUpdateCmd.Flags().String("new-day", "", "New operation day (yyyy-MM-dd)")
	paymentUpdateCmd.Flags().String("new-comment", "", "New comment")
}

func addOperationFlags(cmd *cobra.Command) {
	cmd.Flags().String("key", "", "Operation key (generated when empty)")
	cmd.Flags().String("account", "", "Payment account id")
	cmd.Flags().String("category", "", "Category id")
	cmd.Flags().String("contractor", "", "Contractor id")
	cmd.Flags().String("amount", "", "Amount")
	cmd.Flags().String("day", "", "Operation day (yyyy-MM-dd, today when empty)")
	cmd.Flags().String("comment", "", "Comment")
}

// operationFromFlags reads the operation flags of cmd
func operationFromFlags(cmd *cobra.Command) (models.FinancialTransaction, error) {
	key, _ := cmd.Flags().GetString("key")
	account, _ := cmd.Flags().GetString("account")
	category, _ := cmd.Flags().GetString("category")
	contractor, _ := cmd.Flags().GetString("contractor")
	amount, _ := cmd.Flags().GetString("amount")
	day, _ := cmd.Flags().GetString("day")
	comment, _ := cmd.Flags().GetString("comment")

	if key == "" {
		key = uuid.NewString()
	}

	tx := models.FinancialTransaction{
		Key:              key,
		PaymentAccountID: account,
		CategoryID:       category,
		ContractorID:     contractor,
		Comment:          comment,
		TransactionType:  models.TransactionTypePayment,
	}

	var err error
	if tx.Amount, err = parseAmount(amount); err != nil {
		return models.FinancialTransaction{}, err
	}
	if tx.OperationDay, err = parseDay(day); err != nil {
		return models.FinancialTransaction{}, err
	}
	return tx, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}

func parseDay(value string) (models.Date, error) {
	if value == "" {
		return models.DateOf(time.Now()), nil
	}
	day, err := models.ParseDate(value)
	if err != nil {
		return models.Date{}, fmt.Errorf("invalid day %q: %w", value, err)
	}
	return day, nil
}

// withPaymentService opens PostgreSQL and the handbook and runs fn
func withPaymentService(ctx context.Context, fn func(*service.PaymentService) error) error {
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

	payments := service.NewPaymentService(db.NewOutboxRepository(pool.Pool), db.NewTransactionManager(pool.Pool), hb.accounts)
	return fn(payments)
}

func runPaymentAdd(cmd *cobra.Command, args []string) error {
	tx, err := operationFromFlags(cmd)
	if err != nil {
		return err
	}
	correlationID, _ := cmd.Flags().GetString("correlation-id")

	return withPaymentService(cmd.Context(), func(payments *service.PaymentService) error {
		event, err := payments.AddPayment(cmd.Context(), tx, correlationID)
		if err != nil {
			return err
		}
		printEvents(event)
		return nil
	})
}

func runPaymentUpdate(cmd *cobra.Command, args []string) error {
	prev, err := operationFromFlags(cmd)
	if err != nil {
		return err
	}
	correlationID, _ := cmd.Flags().GetString("correlation-id")

	next := prev
	if v, _ := cmd.Flags().GetString("new-account"); v != "" {
		next.PaymentAccountID = v
	}
	if v, _ := cmd.Flags().GetString("new-category"); v != "" {
		next.CategoryID = v
	}
	if v, _ := cmd.Flags().GetString("new-comment"); v != "" {
		next.Comment = v
	}
	if v, _ := cmd.Flags().GetString("new-amount"); v != "" {
		if next.Amount, err = parseAmount(v); err != nil {
			return err
		}
	}
	if v, _ := cmd.Flags().GetString("new-day"); v != "" {
		if next.OperationDay, err = parseDay(v); err != nil {
			return err
		}
	}

	return withPaymentService(cmd.Context(), func(payments *service.PaymentService) error {
		events, err := payments.UpdatePayment(cmd.Context(), prev, next, correlationID)
		if err != nil {
			return err
		}
		printEvents(events...)
		return nil
	})
}

func runPaymentRemove(cmd *cobra.Command, args []string) error {
	tx, err := operationFromFlags(cmd)
	if err != nil {
		return err
	}
	correlationID, _ := cmd.Flags().GetString("correlation-id")

	return withPaymentService(cmd.Context(), func(payments *service.PaymentService) error {
		event, err := payments.RemovePayment(cmd.Context(), tx, correlationID)
		if err != nil {
			return err
		}
		printEvents(event)
		return nil
	})
}

func printEvents(events ...models.PaymentOperationEvent) {
	for _, e := range events {
		fmt.Printf("  %-8s  %s  operation=%s  account=%s  amount=%s  day=%s\n",
			e.EventType, e.ID, e.Payload.Key, e.Payload.PaymentAccountID, e.Payload.Amount, e.Payload.OperationDay)
	}
}
