package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a topic for downstream reporting.
// Events keyed by certificate id keep per-certificate ordering within a
// partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects to the brokers and makes sure the topic exists.
// Topic creation is best-effort; brokers with auto-creation enabled or a
// pre-provisioned topic both work.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	adm := kadm.NewClient(client)
	_, _ = adm.CreateTopic(ctx, 1, 1, nil, topic)
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.CertificateID),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
