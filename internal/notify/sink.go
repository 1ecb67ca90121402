package notify

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andresfuster1/SoonishRepo/internal/domain"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// KafkaSink delivers overlap notifications to the notifications topic, one
// record per participant, with Confluent wire framing. It is the engine's
// NotificationSink; delivery failures surface as errors and the topic is the
// handoff point for downstream fan-out.
type KafkaSink struct {
	producer      messageWriter
	registry      schemaRegistrar
	topic         string
	schemaIDCache sync.Map
}

// NewKafkaSink constructs a sink publishing to the given topic.
func NewKafkaSink(producer messageWriter, registry schemaRegistrar, topic string) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		registry: registry,
		topic:    topic,
	}
}

type notification struct {
	RecipientID string              `json:"recipient_id"`
	Kind        string              `json:"kind"`
	Message     string              `json:"message"`
	DetectedAt  *time.Time          `json:"detected_at,omitempty"`
	RetiredAt   *time.Time          `json:"retired_at,omitempty"`
	Payload     notificationPayload `json:"payload"`
}

type notificationPayload struct {
	PlanIDSelf     string  `json:"planIdSelf"`
	PlanIDFriend   string  `json:"planIdFriend"`
	DistanceKm     float64 `json:"distanceKm"`
	TimeDeltaHours float64 `json:"timeDeltaHours"`
}

// OverlapDetected publishes one detection notice per participant.
func (s *KafkaSink) OverlapDetected(ctx context.Context, record domain.OverlapRecord) error {
	msgs, err := s.buildMessages(ctx, record, domain.EventOverlapDetected, overlapDetectedSchema,
		func(friendID string, p notificationPayload, n *notification) {
			at := record.DetectedAt
			n.DetectedAt = &at
			n.Message = fmt.Sprintf("%s's plan overlaps with yours: %.1f km and %.1f h apart", friendID, p.DistanceKm, p.TimeDeltaHours)
		})
	if err != nil {
		return err
	}
	if err := s.producer.WriteMessages(ctx, s.topic, msgs...); err != nil {
		recordDeliveryFailure(domain.EventOverlapDetected)
		return err
	}
	recordDelivered(domain.EventOverlapDetected, len(msgs))
	return nil
}

// OverlapRetired publishes one retirement notice per participant.
func (s *KafkaSink) OverlapRetired(ctx context.Context, record domain.OverlapRecord) error {
	msgs, err := s.buildMessages(ctx, record, domain.EventOverlapRetired, overlapRetiredSchema,
		func(friendID string, p notificationPayload, n *notification) {
			now := time.Now().UTC()
			n.RetiredAt = &now
			n.Message = fmt.Sprintf("The overlap with %s's plan is no longer active", friendID)
		})
	if err != nil {
		return err
	}
	if err := s.producer.WriteMessages(ctx, s.topic, msgs...); err != nil {
		recordDeliveryFailure(domain.EventOverlapRetired)
		return err
	}
	recordDelivered(domain.EventOverlapRetired, len(msgs))
	return nil
}

func (s *KafkaSink) buildMessages(ctx context.Context, record domain.OverlapRecord, eventType, schema string,
	decorate func(friendID string, p notificationPayload, n *notification)) ([]kafka.Message, error) {

	subject := s.topic + "-value"
	schemaID, err := s.schemaID(ctx, subject, eventType, schema)
	if err != nil {
		return nil, err
	}

	recipients := []struct {
		id       string
		friendID string
	}{
		{record.OwnerAID, record.OwnerBID},
		{record.OwnerBID, record.OwnerAID},
	}

	msgs := make([]kafka.Message, 0, len(recipients))
	for _, rcpt := range recipients {
		self, friend, ok := record.PlansFor(rcpt.id)
		if !ok {
			return nil, fmt.Errorf("record %s does not involve recipient %s", record.Key(), rcpt.id)
		}

		n := notification{
			RecipientID: rcpt.id,
			Kind:        "overlap",
			Payload: notificationPayload{
				PlanIDSelf:     self,
				PlanIDFriend:   friend,
				DistanceKm:     record.DistanceKm,
				TimeDeltaHours: record.TimeDeltaHours,
			},
		}
		decorate(rcpt.friendID, n.Payload, &n)

		body, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(rcpt.id),
			Value: encodeWireFormat(schemaID, body),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(eventType)},
				{Key: "schema_subject", Value: []byte(subject)},
			},
		})
	}
	return msgs, nil
}

func (s *KafkaSink) schemaID(ctx context.Context, subject, eventType, schema string) (int, error) {
	cacheKey := subject + "::" + eventType
	if cached, ok := s.schemaIDCache.Load(cacheKey); ok {
		return cached.(int), nil
	}
	id, err := s.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	s.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

// encodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
