package mq

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"custody/internal/config"
)

// Publisher 账本事件投递
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// KafkaPublisher 基于 sarama 同步生产者
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// DialKafka 创建 Kafka 同步生产者
func DialKafka(brokers []string) (*KafkaPublisher, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1
	kafkaConfig.Version = sarama.V2_1_0_0

	producer, err := sarama.NewSyncProducer(brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	return NewKafkaPublisher(producer), nil
}

func (p *KafkaPublisher) Publish(_ context.Context, topic, key string, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NewPublisher 按配置选择 kafka 或 nats
func NewPublisher(cfg *config.BrokerConfig) (Publisher, error) {
	switch cfg.Kind {
	case "", "kafka":
		return DialKafka(cfg.Brokers)
	case "nats":
		return DialNats(cfg.NatsURL)
	default:
		return nil, fmt.Errorf("不支持的消息队列类型: %s", cfg.Kind)
	}
}
