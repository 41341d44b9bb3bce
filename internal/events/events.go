// Package events публикует след резервов, оставшихся без заказа, для
// внешней сверки остатков.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"orderflow/internal/domain"
)

// TypeReservationsOrphaned значение заголовка event-type
const TypeReservationsOrphaned = "ReservationsOrphaned"

// ReservationsOrphaned остатки списаны в каталоге, но заказ не сохранён
type ReservationsOrphaned struct {
	EventID      string               `json:"eventId"`
	UserID       int64                `json:"userId"`
	RequestID    string               `json:"requestId,omitempty"`
	Reservations []domain.Reservation `json:"reservations"`
	Cause        string               `json:"cause"`
	OccurredAt   time.Time            `json:"occurredAt"`
}

// NewReservationsOrphaned событие с новым идентификатором
func NewReservationsOrphaned(userID int64, requestID string, res []domain.Reservation, cause error) ReservationsOrphaned {
	ev := ReservationsOrphaned{
		EventID:      uuid.NewString(),
		UserID:       userID,
		RequestID:    requestID,
		Reservations: res,
		OccurredAt:   time.Now().UTC(),
	}
	if cause != nil {
		ev.Cause = cause.Error()
	}
	return ev
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик с ключом по id покупателя
type KafkaPublisher struct {
	w     messageWriter
	topic string
	log   *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, topic, log)
}

func newKafkaPublisher(w messageWriter, topic string, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaPublisher{w: w, topic: topic, log: log}
}

func (p *KafkaPublisher) PublishOrphaned(ctx context.Context, ev ReservationsOrphaned) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", TypeReservationsOrphaned, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: payload,
		Headers: injectTrace(ctx, []kafka.Header{
			{Key: "event-type", Value: []byte(TypeReservationsOrphaned)},
			{Key: "event-id", Value: []byte(ev.EventID)},
		}),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", TypeReservationsOrphaned, p.topic, err)
	}
	p.log.InfoContext(ctx, "reservation trail published", "eventId", ev.EventID, "reservations", len(ev.Reservations))
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

func injectTrace(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// LogPublisher пишет событие только в лог, когда Kafka не настроена
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishOrphaned(ctx context.Context, ev ReservationsOrphaned) error {
	p.log.WarnContext(ctx, "reservation trail not exported",
		"eventId", ev.EventID, "userId", ev.UserID, "reservations", ev.Reservations, "cause", ev.Cause)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
