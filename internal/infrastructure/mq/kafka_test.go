package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody/internal/config"
)

func TestKafkaPublisherSendsKeyAndValue(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event":"deposit.approved"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewKafkaPublisher(producer)
	require.NoError(t, p.Publish(context.Background(), "ledger_events", "DEP1", []byte(`{"event":"deposit.approved"}`)))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherPropagatesError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer)
	err := p.Publish(context.Background(), "ledger_events", "DEP1", []byte("{}"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestNewPublisherRejectsUnknownKind(t *testing.T) {
	_, err := NewPublisher(&config.BrokerConfig{Kind: "rabbit"})
	assert.Error(t, err)
}
