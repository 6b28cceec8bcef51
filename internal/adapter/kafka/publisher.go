// Package kafka publishes finished daily regional statistics to a sink
// topic for downstream consumers. Publishing is optional; the pipeline
// writes its parquet output regardless.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"gridfusion/internal/config"
	"gridfusion/internal/domain"
)

// Publisher produces one message per region row of a daily table.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishDaily serializes every row of the table and publishes them in a
// single WriteMessages call for efficiency.
func (p *Publisher) PublishDaily(ctx context.Context, table *domain.DailyTable) error {
	if len(table.Rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(table.Rows))
	for i := range table.Rows {
		msg, err := serializeRow(table.Date, table.Variables, table.Rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish daily table %s: %w", table.Date, err)
	}
	p.logger.Info("daily table published", "date", table.Date, "rows", len(table.Rows))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeRow marshals one regional row into a Kafka message keyed by
// region code, so all days of a region land on the same partition.
func serializeRow(date domain.Date, variables []string, row domain.DailyRow) (kafkago.Message, error) {
	payload := map[string]any{
		"date":        date.String(),
		"region_code": row.RegionCode,
	}
	if row.RegionName != nil {
		payload["region_name"] = *row.RegionName
	}
	for _, v := range variables {
		payload[v] = row.Values[v]
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize daily row %s: %w", row.RegionCode, err)
	}
	return kafkago.Message{
		Key:   []byte(row.RegionCode),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "date", Value: []byte(date.String())},
			{Key: "processed_at", Value: []byte(domain.Now().Format(time.RFC3339))},
		},
	}, nil
}
