package messaging

import (
	"fmt"
	"sort"

	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/config"
	"github.com/Allmantool/h-budget.HomeBudget.AccountingApi-sub001/internal/domain"
)

// ConsumerType names a consumer implementation.
type ConsumerType string

const (
	ConsumerTypeRabbitMQ ConsumerType = "rabbitmq"
	ConsumerTypeKafka    ConsumerType = "kafka"
)

// TopicSpec describes a consumed topic.
type TopicSpec struct {
	Name         string
	ConsumerType ConsumerType
	// Group is the Kafka consumer group; unused by RabbitMQ.
	Group string
}

// Constructor builds an unsubscribed consumer for spec.
type Constructor func(spec TopicSpec) (Consumer, error)

// Factory maps a closed set of consumer types to constructors.
type Factory struct {
	constructors map[ConsumerType]Constructor
}

// NewFactory creates a factory over constructors.
func NewFactory(constructors map[ConsumerType]Constructor) *Factory {
	copied := make(map[ConsumerType]Constructor, len(constructors))
	for k, v := range constructors {
		copied[k] = v
	}
	return &Factory{constructors: copied}
}

// NewBusFactory registers the RabbitMQ and Kafka consumers.
func NewBusFactory(rabbit config.RabbitMQConfig, kafkaCfg config.KafkaConfig) *Factory {
	return NewFactory(map[ConsumerType]Constructor{
		ConsumerTypeRabbitMQ: func(TopicSpec) (Consumer, error) {
			return NewRabbitMQConsumer(rabbit)
		},
		ConsumerTypeKafka: func(spec TopicSpec) (Consumer, error) {
			return NewKafkaConsumer(kafkaCfg, spec.Group), nil
		},
	})
}

// Build creates a consumer of spec.ConsumerType.
func (f *Factory) Build(spec TopicSpec) (Consumer, error) {
	construct, ok := f.constructors[spec.ConsumerType]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", domain.ErrUnknownConsumerType, spec.ConsumerType, f.Types())
	}

	consumer, err := construct(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s consumer for %s: %w", spec.ConsumerType, spec.Name, err)
	}
	return consumer, nil
}

// Types lists the registered consumer types.
func (f *Factory) Types() []ConsumerType {
	types := make([]ConsumerType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
