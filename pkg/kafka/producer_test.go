package kafka

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
)

type recordingWriter struct {
	written []kafka.Message
	err     error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), config.KafkaConfig{Brokers: []string{" ", ""}}, nil)
	require.ErrorIs(t, err, ErrNoBrokers)

	p, err := NewProducer(context.Background(), config.KafkaConfig{Brokers: []string{"kafka-1:9092, kafka-2:9092"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, p.brokers)
}

func TestPublishConvertsMessages(t *testing.T) {
	writer := &recordingWriter{}
	p := &Producer{writer: writer}

	err := p.Publish(context.Background(), Message{
		Topic:   "pokecard.orders",
		Key:     "order-1",
		Value:   []byte(`{"ok":true}`),
		Headers: map[string]string{"event_type": "order.paid", "event_id": "e1"},
	})
	require.NoError(t, err)
	require.Len(t, writer.written, 1)

	rec := writer.written[0]
	assert.Equal(t, "pokecard.orders", rec.Topic)
	assert.Equal(t, []byte("order-1"), rec.Key)
	assert.False(t, rec.Time.IsZero())

	keys := []string{}
	for _, h := range rec.Headers {
		keys = append(keys, h.Key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"event_id", "event_type"}, keys)
}

func TestPublishRejectsMissingTopicAndPropagatesErrors(t *testing.T) {
	writer := &recordingWriter{}
	p := &Producer{writer: writer}
	require.Error(t, p.Publish(context.Background(), Message{Value: []byte("x")}))
	assert.Empty(t, writer.written)

	writer.err = errors.New("broker down")
	require.EqualError(t, p.Publish(context.Background(), Message{Topic: "t"}), "broker down")

	require.NoError(t, p.Publish(context.Background()))
}

func TestPingTriesEveryBroker(t *testing.T) {
	attempts := []string{}
	p := &Producer{
		brokers: []string{"a:9092", "b:9092"},
		dial: func(_ context.Context, _, address string) (net.Conn, error) {
			attempts = append(attempts, address)
			if address == "a:9092" {
				return nil, errors.New("refused")
			}
			client, server := net.Pipe()
			_ = server.Close()
			return client, nil
		},
	}
	require.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, []string{"a:9092", "b:9092"}, attempts)

	p.dial = func(context.Context, string, string) (net.Conn, error) { return nil, errors.New("refused") }
	require.Error(t, p.Ping(context.Background()))
}
