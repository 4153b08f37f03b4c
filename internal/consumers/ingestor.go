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

// ResultSaver persists released patient results.
type ResultSaver interface {
	Save(ctx context.Context, r db.PatientResult) error
}

// ResultIngestor turns inbound ORU messages into released patient results
// so a failed QC run can find what it may have affected.
type ResultIngestor struct {
	js       jetstream.JetStream
	results  ResultSaver
	stats    *store.Stats
	tenantID string
}

func NewResultIngestor(js jetstream.JetStream, results ResultSaver, stats *store.Stats, tenantID string) *ResultIngestor {
	return &ResultIngestor{
		js:       js,
		results:  results,
		stats:    stats,
		tenantID: tenantID,
	}
}

func (i *ResultIngestor) Start(ctx context.Context) error {
	consumer, err := i.js.CreateOrUpdateConsumer(ctx, store.StreamInbound, jetstream.ConsumerConfig{
		Name:          "result-ingestor",
		Durable:       "result-ingestor",
		Description:   "Gelen ORU mesajlarından hasta sonuçlarını çıkaran consumer",
		FilterSubject: hl7.InboundSubject(hl7.TypeORU),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	})
	if err != nil {
		return fmt.Errorf("ingestor consumer oluşturulamadı: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if _, err := i.ingest(ctx, msg.Data()); err != nil {
			slog.Error("ORU mesajı işlenemedi", "error", err)
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("ingestor consumer başlatılamadı: %w", err)
	}

	slog.Info("Result ingestor başlatıldı", "stream", store.StreamInbound)

	go func() {
		<-ctx.Done()
		cons.Stop()
	}()

	return nil
}

func (i *ResultIngestor) ingest(ctx context.Context, data []byte) (int, error) {
	var labMsg db.LabMessage
	if err := json.Unmarshal(data, &labMsg); err != nil {
		return 0, fmt.Errorf("mesaj parse hatası: %w", err)
	}
	parsed := hl7.ParseMessage(labMsg.RawMessage)
	results := ExtractResults(hl7.DecodeResultMessage(parsed), i.tenantID, labMsg.Timestamp)

	for _, r := range results {
		if err := i.results.Save(ctx, r); err != nil {
			return 0, err
		}
	}

	// Counters move only once every result is stored.
	i.stats.Incr(ctx, store.StatInboundReceived)
	i.stats.IncrBy(ctx, store.StatResultsIngested, int64(len(results)))
	i.stats.Set(ctx, store.StatLastInboundTime, labMsg.Timestamp.Format(time.RFC3339))

	slog.Info("ORU sonuçları kaydedildi",
		"id", labMsg.ID,
		"controlID", labMsg.MessageControlID,
		"results", len(results))

	return len(results), nil
}

// ExtractResults maps final and corrected OBX segments of a result message
// to released patient results. Result ids derive from the control ID and
// OBX set id so redeliveries overwrite instead of duplicating.
func ExtractResults(rm hl7.ResultMessage, tenantID string, releasedAt time.Time) []db.PatientResult {
	var patientID, placer, filler string
	var service *hl7.CodedElement

	if rm.Patient != nil && len(rm.Patient.Identifiers) > 0 {
		patientID = rm.Patient.Identifiers[0].ID
	}
	if rm.Order != nil {
		placer, filler = rm.Order.PlacerOrderNumber, rm.Order.FillerOrderNumber
	}
	if rm.Request != nil {
		if rm.Request.PlacerOrderNumber != "" {
			placer = rm.Request.PlacerOrderNumber
		}
		if rm.Request.FillerOrderNumber != "" {
			filler = rm.Request.FillerOrderNumber
		}
		service = rm.Request.UniversalServiceID
	}

	var out []db.PatientResult
	for idx, obx := range rm.Observations {
		if obx.ObservationResultStatus != hl7.ResultStatusFinal && obx.ObservationResultStatus != hl7.ResultStatusCorrected {
			continue
		}

		code := obx.ObservationIdentifier
		if code == nil || code.Identifier == "" {
			code = service
		}
		if code == nil || code.Identifier == "" {
			continue
		}

		setID := obx.SetID
		if setID == 0 {
			setID = idx + 1
		}

		out = append(out, db.PatientResult{
			ID:               fmt.Sprintf("%s-%d", rm.MessageControlID, setID),
			TenantID:         tenantID,
			TestID:           code.Identifier,
			TestName:         code.Text,
			PatientID:        patientID,
			PlacerOrder:      placer,
			FillerOrder:      filler,
			Value:            obx.Value(),
			Units:            obx.Units,
			AbnormalFlags:    obx.AbnormalFlags,
			ResultStatus:     obx.ObservationResultStatus,
			MessageControlID: rm.MessageControlID,
			ReleasedAt:       releasedAt,
		})
	}

	return out
}
