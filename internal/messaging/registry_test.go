package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
)

func TestFactory_Build(t *testing.T) {
	factory := NewFactory(map[ConsumerType]Constructor{
		ConsumerTypeRabbitMQ: func(TopicSpec) (Consumer, error) { return newMockConsumer(), nil },
		ConsumerTypeKafka:    func(TopicSpec) (Consumer, error) { return nil, errors.New("no brokers") },
	})

	tests := []struct {
		name        string
		kind        ConsumerType
		wantErr     bool
		wantUnknown bool
	}{
		{name: "registered kind", kind: ConsumerTypeRabbitMQ},
		{name: "constructor error", kind: ConsumerTypeKafka, wantErr: true},
		{name: "unknown kind", kind: "nats", wantErr: true, wantUnknown: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer, err := factory.Build(TopicSpec{Name: "ledger.payments", ConsumerType: tt.kind})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if errors.Is(err, domain.ErrUnknownConsumerType) != tt.wantUnknown {
					t.Errorf("unexpected error kind: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if consumer == nil {
				t.Error("expected a consumer")
			}
		})
	}
}

func TestFactory_TypesSorted(t *testing.T) {
	factory := NewFactory(map[ConsumerType]Constructor{
		ConsumerTypeRabbitMQ: nil,
		ConsumerTypeKafka:    nil,
	})

	types := factory.Types()
	if len(types) != 2 || types[0] != ConsumerTypeKafka || types[1] != ConsumerTypeRabbitMQ {
		t.Errorf("expected [kafka rabbitmq], got %v", types)
	}
}

func TestRegistry_CreateAndSubscribe(t *testing.T) {
	consumer := newMockConsumer()
	registry := NewRegistry(NewFactory(map[ConsumerType]Constructor{
		ConsumerTypeRabbitMQ: func(TopicSpec) (Consumer, error) { return consumer, nil },
	}))

	got, err := registry.CreateAndSubscribe(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Consumer(consumer) {
		t.Error("expected the constructed consumer")
	}
	if subs := consumer.Subscriptions(); len(subs) != 1 || subs[0] != "ledger.payments" {
		t.Errorf("expected subscription to ledger.payments, got %v", subs)
	}
	if topics := registry.Topics(); len(topics) != 1 || topics[0] != "ledger.payments" {
		t.Errorf("expected registered topic, got %v", topics)
	}
	if registry.Alive() != 1 {
		t.Errorf("expected 1 alive consumer, got %d", registry.Alive())
	}
}

func TestRegistry_FailedSubscribeClosesConsumer(t *testing.T) {
	consumer := newMockConsumer()
	consumer.subscribe = errors.New("access refused")
	registry := NewRegistry(NewFactory(map[ConsumerType]Constructor{
		ConsumerTypeRabbitMQ: func(TopicSpec) (Consumer, error) { return consumer, nil },
	}))

	if _, err := registry.CreateAndSubscribe(context.Background(), testSpec()); err == nil {
		t.Fatal("expected error")
	}
	if !consumer.closed {
		t.Error("expected consumer to be closed")
	}
	if len(registry.Topics()) != 0 {
		t.Errorf("expected nothing registered, got %v", registry.Topics())
	}
}

func TestRegistry_EvictAndCloseAll(t *testing.T) {
	registry := NewRegistry(NewFactory(nil))
	first := subscribed(newMockConsumer())
	second := subscribed(newMockConsumer())
	other := newMockConsumer()
	registry.Add("ledger.payments", first)
	registry.Add("ledger.payments", second)
	registry.Add("ledger.accounts", other)

	if !registry.Evict("ledger.payments", first) {
		t.Fatal("expected first consumer to be evicted")
	}
	if !first.closed {
		t.Error("expected evicted consumer to be closed")
	}
	if registry.Evict("ledger.payments", first) {
		t.Error("expected second eviction to report not found")
	}
	if got := registry.Consumers("ledger.payments"); len(got) != 1 || got[0] != Consumer(second) {
		t.Errorf("expected only second consumer left, got %d", len(got))
	}

	registry.CloseAll()

	if !second.closed || !other.closed {
		t.Error("expected every consumer closed")
	}
	if len(second.Subscriptions()) != 0 {
		t.Error("expected subscriptions dropped")
	}
	if len(registry.Topics()) != 0 {
		t.Errorf("expected empty registry, got %v", registry.Topics())
	}
}
