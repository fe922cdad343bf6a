package queue

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"delaywatch/internal/config"
	"delaywatch/internal/notifications"
	"delaywatch/internal/types"
)

// messageWriter is the subset of *kafkago.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var _ notifications.Sink = (*KafkaSink)(nil)

// KafkaSink publishes alert payloads to a Kafka topic keyed by site ID, so
// every alert for a site lands on the same partition in order.
type KafkaSink struct {
	writer messageWriter
	logger types.Logger
}

// NewKafkaSink creates a producer for the configured alert topic.
func NewKafkaSink(cfg config.KafkaConfig, logger types.Logger) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &KafkaSink{writer: w, logger: logger}
}

func newKafkaSinkWithWriter(w messageWriter, logger types.Logger) *KafkaSink {
	return &KafkaSink{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (k *KafkaSink) Name() string { return "kafka" }

// Send writes p as a single message.
func (k *KafkaSink) Send(ctx context.Context, p *notifications.Payload) error {
	msg, err := serializeToMessage(p)
	if err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "kafka sink: failed to serialize payload", err)
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return types.NewAppError(types.ErrCodeDeliveryFailed, "kafka sink: write failed", err)
	}
	k.logger.Info("alert published", "alert_id", p.AlertID, "site_id", p.SiteID, "alert_type", string(p.AlertType))
	return nil
}

// Close flushes pending writes and releases the connection.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func serializeToMessage(p *notifications.Payload) (kafkago.Message, error) {
	data, err := p.Marshal()
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert payload: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.SiteID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "alert_type", Value: []byte(p.AlertType)},
			{Key: "severity", Value: []byte(p.Severity)},
			{Key: "alert_id", Value: []byte(p.AlertID)},
		},
	}, nil
}
