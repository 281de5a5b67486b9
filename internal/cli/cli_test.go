package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/messaging"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/models"
)

type stubConsumer struct {
	topics []string
}

func (s *stubConsumer) Subscribe(ctx context.Context, topic string) error {
	s.topics = append(s.topics, topic)
	return nil
}
func (s *stubConsumer) PollOnce(ctx context.Context) (*messaging.Message, error) { return nil, nil }
func (s *stubConsumer) Unsubscribe() error                                       { return nil }
func (s *stubConsumer) Alive() bool                                              { return true }
func (s *stubConsumer) Subscriptions() []string                                  { return s.topics }
func (s *stubConsumer) Close() error                                             { return nil }

type stubSink struct{}

func (stubSink) Push(events ...models.PaymentOperationEvent) {}

func newOperationCmd(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addOperationFlags(cmd)
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}
	return cmd
}

func TestOperationFromFlags(t *testing.T) {
	cmd := newOperationCmd(t, map[string]string{
		"key":      "op-1",
		"account":  "acc-1",
		"category": "food",
		"amount":   "-12.50",
		"day":      "2024-03-05",
		"comment":  "groceries",
	})

	tx, err := operationFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tx.Key != "op-1" || tx.PaymentAccountID != "acc-1" || tx.CategoryID != "food" || tx.Comment != "groceries" {
		t.Errorf("unexpected operation: %+v", tx)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("-12.5")) {
		t.Errorf("expected -12.5, got %s", tx.Amount)
	}
	if tx.OperationDay != models.NewDate(2024, time.March, 5) || tx.TransactionType != models.TransactionTypePayment {
		t.Errorf("unexpected day or type: %+v", tx)
	}
}

func TestOperationFromFlags_Defaults(t *testing.T) {
	cmd := newOperationCmd(t, map[string]string{"amount": "10"})

	tx, err := operationFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.Key == "" {
		t.Error("expected generated key")
	}
	if tx.OperationDay != models.DateOf(time.Now()) {
		t.Errorf("expected today, got %s", tx.OperationDay)
	}
}

func TestOperationFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
	}{
		{"missing amount", map[string]string{}},
		{"bad amount", map[string]string{"amount": "ten"}},
		{"bad day", map[string]string{"amount": "10", "day": "05.03.2024"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := operationFromFlags(newOperationCmd(t, tt.flags)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildLoops(t *testing.T) {
	factory := messaging.NewFactory(map[messaging.ConsumerType]messaging.Constructor{
		messaging.ConsumerTypeRabbitMQ: func(messaging.TopicSpec) (messaging.Consumer, error) {
			return &stubConsumer{}, nil
		},
		messaging.ConsumerTypeKafka: func(messaging.TopicSpec) (messaging.Consumer, error) {
			return nil, errors.New("broker unreachable")
		},
	})
	registry := messaging.NewRegistry(factory)

	cfg := &config.Config{Topics: []config.TopicConfig{
		{Name: "ledger.payments", ConsumerType: "rabbitmq", Target: config.TargetPayments},
		{Name: "ledger.accounts", ConsumerType: "kafka", Target: config.TargetAccounts},
	}}
	sinks := map[string]messaging.Sink{
		config.TargetPayments: stubSink{},
		config.TargetAccounts: stubSink{},
	}

	loops, err := buildLoops(context.Background(), cfg, registry, sinks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loops) != 2 {
		t.Fatalf("expected a loop per topic even when a consumer fails, got %d", len(loops))
	}

	topics := registry.Topics()
	if len(topics) != 1 || topics[0] != "ledger.payments" {
		t.Errorf("expected only the rabbitmq consumer registered, got %v", topics)
	}
}

func TestBuildLoops_UnknownTarget(t *testing.T) {
	registry := messaging.NewRegistry(messaging.NewFactory(nil))
	cfg := &config.Config{Topics: []config.TopicConfig{
		{Name: "ledger.misc", ConsumerType: "rabbitmq", Target: "nowhere"},
	}}

	if _, err := buildLoops(context.Background(), cfg, registry, map[string]messaging.Sink{}); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestNewPublisher_UnknownKind(t *testing.T) {
	cfg := &config.Config{Outbox: config.OutboxConfig{Publisher: "carrier-pigeon"}}
	if _, err := newPublisher(cfg); err == nil {
		t.Error("expected error for unknown publisher")
	}
}
