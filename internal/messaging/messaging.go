package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/config"
)

// HeaderEventType names the header that carries the event discriminator.
const HeaderEventType = "event-type"

// Message represents a message on the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// EventType returns the event discriminator header, if any.
func (m Message) EventType() string {
	return m.Headers[HeaderEventType]
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// PublishEvent JSON-encodes payload and publishes it to topic tagged with
// eventType. An empty topic means the client's default.
func PublishEvent(ctx context.Context, client Client, topic, eventType, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	return client.Publish(ctx, Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   body,
		Headers: map[string]string{HeaderEventType: eventType},
	})
}

type noopClient struct {
	topic string
}

func (n noopClient) Publish(context.Context, Message) error { return nil }

func (n noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

type kafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	logger *zap.Logger
}

func (k *kafkaClient) Publish(ctx context.Context, msg Message) error {
	out := kafka.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
	if out.Topic == "" {
		out.Topic = k.topic
	}
	for key, value := range msg.Headers {
		out.Headers = append(out.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return k.writer.WriteMessages(ctx, out)
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(ctx, fromKafka(msg)); err != nil {
			// left uncommitted so the group redelivers it
			k.logger.Error("message handler failed", zap.Error(err), zap.Int64("offset", msg.Offset))
			continue
		}

		if err := k.reader.CommitMessages(ctx, msg); err != nil {
			k.logger.Warn("commit failed", zap.Error(err))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func fromKafka(msg kafka.Message) Message {
	wrapped := Message{
		Topic:  msg.Topic,
		Key:    append([]byte(nil), msg.Key...),
		Value:  append([]byte(nil), msg.Value...),
		Offset: msg.Offset,
		Time:   msg.Time,
	}
	if len(msg.Headers) > 0 {
		wrapped.Headers = make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			wrapped.Headers[h.Key] = string(h.Value)
		}
	}
	return wrapped
}

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.Messaging.Driver {
	case "noop":
		logger.Info("messaging disabled; using noop client")
		return noopClient{topic: cfg.Messaging.Kafka.Topic}, nil
	case "kafka":
		return newKafkaClient(lc, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}

func newKafkaClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) Client {
	kc := cfg.Messaging.Kafka

	// Topic is set per message so events can be routed to other topics.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(kc.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger, errors: true},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kc.Brokers,
		GroupID:        cfg.Messaging.ConsumerGroup,
		Topic:          kc.Topic,
		MinBytes:       kc.MinBytes,
		MaxBytes:       kc.MaxBytes,
		CommitInterval: kc.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  kc.ConnectTimeout,
			ClientID: kc.ClientID,
		},
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing kafka client")
			return errors.Join(writer.Close(), reader.Close())
		},
	})

	return &kafkaClient{writer: writer, reader: reader, topic: kc.Topic, logger: logger}
}

type kafkaLogger struct {
	logger *zap.Logger
	errors bool
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	if k.errors {
		k.logger.Sugar().Warnf(msg, args...)
		return
	}
	k.logger.Sugar().Debugf(msg, args...)
}
