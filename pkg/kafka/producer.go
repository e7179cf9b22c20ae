package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
)

var ErrNoBrokers = errors.New("kafka brokers are required")

// Message is a broker-agnostic record; Topic is required.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
	Time    time.Time
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages to any topic through one shared writer.
type Producer struct {
	writer  messageWriter
	brokers []string
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewProducer builds a hash-balanced writer so every aggregate keeps its order
// within a partition.
func NewProducer(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	brokers := normalizeBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "kafka_brokers", strings.Join(brokers, ",")), "kafka producer configured")
	}
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return &Producer{writer: writer, brokers: brokers, dial: dial}, nil
}

// Publish writes the messages in one batch.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka producer not initialized")
	}
	records := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		record, err := ToRecord(msg)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, records...)
}

// Ping opens and closes a connection to the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil || len(p.brokers) == 0 {
		return ErrNoBrokers
	}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := p.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ToRecord converts a Message into a kafka-go record.
func ToRecord(msg Message) (kafka.Message, error) {
	if strings.TrimSpace(msg.Topic) == "" {
		return kafka.Message{}, errors.New("kafka topic is required")
	}
	record := kafka.Message{
		Topic: msg.Topic,
		Value: msg.Value,
		Time:  msg.Time,
	}
	if msg.Key != "" {
		record.Key = []byte(msg.Key)
	}
	if record.Time.IsZero() {
		record.Time = time.Now().UTC()
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return record, nil
}

func normalizeBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, b := range strings.Split(entry, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
