package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-matcher/internal/engine"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one JSON message per trade, keyed by trade id
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a synchronous producer for topic
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, trades []engine.Trade) error {
	msgs, err := encodeTrades(trades)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func encodeTrades(trades []engine.Trade) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(trades))
	for _, trade := range trades {
		value, err := json.Marshal(trade)
		if err != nil {
			return nil, fmt.Errorf("encode trade %s: %w", trade.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(trade.ID),
			Value: value,
			Time:  time.UnixMilli(trade.Timestamp),
		})
	}
	return msgs, nil
}
