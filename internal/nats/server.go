package nats

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Streams
const (
	StreamInbound       = "HL7_INBOUND"
	StreamOutbound      = "HL7_OUTBOUND"
	StreamQCResults     = "QC_RESULTS"
	StreamNotifications = "NOTIFICATIONS"
)

// KV buckets
const (
	BucketQCTargets  = "QC_TARGETS"
	BucketQCWindows  = "QC_WINDOWS"
	BucketLabResults = "LAB_RESULTS"
	BucketStats      = "LAB_STATS"
	BucketDLQ        = "HL7_DLQ"
)

// HL7Streams are the streams carrying LabMessage records.
var HL7Streams = []string{StreamInbound, StreamOutbound}

// AllStreams lists every stream the server creates.
var AllStreams = []string{StreamInbound, StreamOutbound, StreamQCResults, StreamNotifications}

type EmbeddedServer struct {
	server *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
}

func NewEmbeddedServer(dataDir string) (*EmbeddedServer, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "nats-store"),
		Port:      -1, // Random port, internal use only
		HTTPPort:  -1,
		NoSigs:    true,
	}

	if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("store dizini oluşturulamadı: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("NATS sunucu oluşturulamadı: %w", err)
	}

	ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS sunucu başlatılamadı")
	}

	slog.Info("Gömülü NATS sunucu başlatıldı", "clientURL", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS bağlantısı kurulamadı: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("JetStream başlatılamadı: %w", err)
	}

	es := &EmbeddedServer{
		server: ns,
		nc:     nc,
		js:     js,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := es.createStreams(ctx); err != nil {
		es.Shutdown()
		return nil, err
	}

	if err := es.createKVStores(ctx); err != nil {
		es.Shutdown()
		return nil, err
	}

	return es, nil
}

func (es *EmbeddedServer) createStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        StreamInbound,
			Description: "Cihaz ve HIS'ten gelen HL7 mesajları",
			Subjects:    []string{"hl7.inbound.>"},
			MaxAge:      7 * 24 * time.Hour,
			MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		},
		{
			Name:        StreamOutbound,
			Description: "Dışarı gönderilecek HL7 mesajları",
			Subjects:    []string{"hl7.outbound.>"},
			MaxAge:      7 * 24 * time.Hour,
			MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		},
		{
			Name:        StreamQCResults,
			Description: "Kalite kontrol sonuçları",
			Subjects:    []string{"qc.results.>"},
			MaxAge:      400 * 24 * time.Hour,
			MaxBytes:    1024 * 1024 * 1024, // 1GB
		},
		{
			Name:        StreamNotifications,
			Description: "QC bildirimleri (e-posta/SMS/push dağıtımı için)",
			Subjects:    []string{"notifications.>"},
			MaxAge:      30 * 24 * time.Hour,
			MaxBytes:    100 * 1024 * 1024, // 100MB
		},
	}

	for _, cfg := range streams {
		cfg.Retention = jetstream.LimitsPolicy
		cfg.Storage = jetstream.FileStorage
		cfg.Replicas = 1
		cfg.MaxMsgs = 1000000

		if _, err := es.js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("%s stream oluşturulamadı: %w", cfg.Name, err)
		}
		slog.Info("Stream oluşturuldu", "stream", cfg.Name)
	}

	return nil
}

func (es *EmbeddedServer) createKVStores(ctx context.Context) error {
	buckets := []jetstream.KeyValueConfig{
		{
			Bucket:      BucketQCTargets,
			Description: "Kontrol lotu hedef ortalama ve SD değerleri",
			History:     5,
			MaxBytes:    10 * 1024 * 1024,
		},
		{
			Bucket:      BucketQCWindows,
			Description: "Test+seviye+lot başına son QC değerleri",
			History:     1,
			MaxBytes:    100 * 1024 * 1024,
		},
		{
			Bucket:      BucketLabResults,
			Description: "Onaylanmış hasta sonuçları",
			History:     1,
			TTL:         7 * 24 * time.Hour,
			MaxBytes:    500 * 1024 * 1024,
		},
		{
			Bucket:      BucketStats,
			Description: "Mesaj ve QC sayaçları",
			History:     1,
			MaxBytes:    1024 * 1024,
		},
		{
			Bucket:      BucketDLQ,
			Description: "Başarısız HL7 mesajları (Dead Letter Queue)",
			History:     1,
			TTL:         7 * 24 * time.Hour,
			MaxBytes:    100 * 1024 * 1024,
		},
	}

	for _, cfg := range buckets {
		cfg.Storage = jetstream.FileStorage
		if _, err := es.js.CreateKeyValue(ctx, cfg); err != nil {
			return fmt.Errorf("%s KV store oluşturulamadı: %w", cfg.Bucket, err)
		}
		slog.Info("KV store oluşturuldu", "bucket", cfg.Bucket)
	}

	return nil
}

func (es *EmbeddedServer) JetStream() jetstream.JetStream {
	return es.js
}

func (es *EmbeddedServer) Connection() *nats.Conn {
	return es.nc
}

func (es *EmbeddedServer) Shutdown() {
	if es.nc != nil {
		es.nc.Close()
	}
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	slog.Info("NATS sunucu kapatıldı")
}
