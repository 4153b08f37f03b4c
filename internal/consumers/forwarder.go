package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/minasoft/lab-interop/internal/db"
	"github.com/minasoft/lab-interop/internal/hl7"
	store "github.com/minasoft/lab-interop/internal/nats"
	"github.com/nats-io/nats.go/jetstream"
)

// forwarderMaxDeliver is the delivery attempt at which a failing message is
// moved to the DLQ. The consumer itself redelivers without limit so a failed
// DLQ write is retried instead of dropped.
const (
	forwarderMaxDeliver = 5
	maxRetryDelay       = time.Minute
)

// Sender delivers raw HL7 to a downstream MLLP endpoint.
type Sender interface {
	SendMessage(ctx context.Context, message []byte) (*hl7.Message, error)
}

// DeadLetterSink receives messages that exhausted their deliveries.
type DeadLetterSink interface {
	Put(ctx context.Context, msg db.LabMessage) error
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDead
)

// MessageForwarder drains HL7_OUTBOUND to the configured LIS/instrument
// endpoint.
type MessageForwarder struct {
	js          jetstream.JetStream
	client      Sender
	dlq         DeadLetterSink
	stats       *store.Stats
	destination string
}

func NewMessageForwarder(js jetstream.JetStream, client Sender, dlq DeadLetterSink, stats *store.Stats, destination string) *MessageForwarder {
	return &MessageForwarder{
		js:          js,
		client:      client,
		dlq:         dlq,
		stats:       stats,
		destination: destination,
	}
}

func (f *MessageForwarder) Start(ctx context.Context) error {
	consumer, err := f.js.CreateOrUpdateConsumer(ctx, store.StreamOutbound, forwarderConsumerConfig())
	if err != nil {
		return fmt.Errorf("outbound consumer oluşturulamadı: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		f.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("outbound consumer başlatılamadı: %w", err)
	}

	slog.Info("Outbound forwarder başlatıldı",
		"stream", store.StreamOutbound,
		"destination", f.destination)

	go func() {
		<-ctx.Done()
		cons.Stop()
	}()

	return nil
}

func forwarderConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          "outbound-forwarder",
		Durable:       "outbound-forwarder",
		Description:   "Giden HL7 mesajlarını MLLP ile ileten consumer",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    -1,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// retryDelay grows linearly with the delivery attempt up to maxRetryDelay.
func retryDelay(delivered uint64) time.Duration {
	if delivered >= uint64(maxRetryDelay/(5*time.Second)) {
		return maxRetryDelay
	}
	return time.Duration(delivered) * 5 * time.Second
}

func (f *MessageForwarder) handle(ctx context.Context, msg jetstream.Msg) {
	var delivered uint64 = 1
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
	}

	switch f.forward(ctx, msg.Data(), delivered) {
	case outcomeAck:
		msg.Ack()
	case outcomeRetry:
		msg.NakWithDelay(retryDelay(delivered))
	case outcomeDead:
		msg.Term()
	}
}

// forward sends one LabMessage payload. delivered is the 1-based delivery
// attempt reported by JetStream.
func (f *MessageForwarder) forward(ctx context.Context, data []byte, delivered uint64) outcome {
	var labMsg db.LabMessage
	if err := json.Unmarshal(data, &labMsg); err != nil {
		slog.Error("Mesaj parse hatası", "error", err)
		return outcomeDead
	}

	slog.Info("Outbound mesaj işleniyor",
		"id", labMsg.ID,
		"messageType", labMsg.MessageType,
		"controlID", labMsg.MessageControlID,
		"attempt", delivered)

	_, err := f.client.SendMessage(ctx, labMsg.RawMessage)
	if err == nil {
		now := time.Now()
		labMsg.Status = db.StatusForwarded
		labMsg.ProcessedAt = &now
		f.stats.Incr(ctx, store.StatOutboundSent)
		f.stats.Set(ctx, store.StatLastOutboundTime, now.Format(time.RFC3339))

		slog.Info("Outbound mesaj başarıyla gönderildi",
			"id", labMsg.ID,
			"destination", f.destination)
		return outcomeAck
	}

	labMsg.Status = db.StatusFailed
	labMsg.LastError = err.Error()
	labMsg.RetryCount = int(delivered)

	slog.Error("Outbound mesaj gönderme hatası",
		"id", labMsg.ID,
		"error", err,
		"retryCount", labMsg.RetryCount)

	if delivered < forwarderMaxDeliver {
		return outcomeRetry
	}

	if err := f.dlq.Put(ctx, labMsg); err != nil {
		slog.Error("Mesaj DLQ'ya yazılamadı, yeniden denenecek", "id", labMsg.ID, "error", err)
		return outcomeRetry
	}
	f.stats.Incr(ctx, store.StatOutboundFailed)
	slog.Warn("Mesaj DLQ'ya taşındı", "id", labMsg.ID)
	return outcomeDead
}
