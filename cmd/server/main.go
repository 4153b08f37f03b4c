package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/minasoft/lab-interop/internal/config"
	"github.com/minasoft/lab-interop/internal/consumers"
	"github.com/minasoft/lab-interop/internal/hl7"
	"github.com/minasoft/lab-interop/internal/nats"
	"github.com/minasoft/lab-interop/internal/qc"
	"github.com/minasoft/lab-interop/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Yapılandırma yüklenemedi", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	natsServer, err := nats.NewEmbeddedServer(cfg.DataDir)
	if err != nil {
		slog.Error("NATS sunucu başlatılamadı", "error", err)
		os.Exit(1)
	}
	defer natsServer.Shutdown()

	js := natsServer.JetStream()

	stats, err := nats.NewStats(ctx, js)
	if err != nil {
		fatal("Sayaç deposu açılamadı", err)
	}
	dlq, err := nats.NewDeadLetters(ctx, js)
	if err != nil {
		fatal("DLQ açılamadı", err)
	}
	results, err := nats.NewResultStore(ctx, js)
	if err != nil {
		fatal("Sonuç deposu açılamadı", err)
	}
	qcStore, err := nats.NewQCStore(ctx, js, cfg.QCWindowSize)
	if err != nil {
		fatal("QC deposu açılamadı", err)
	}

	escalator := qc.NewEscalator(nats.NewNotificationPublisher(js), results)
	recorder := qc.NewRecorder(qcStore, escalator, cfg.QCMaxRetries)

	var wg sync.WaitGroup

	mllpServer := hl7.NewMLLPServer(cfg.MLLPListenPort, js)
	if err := mllpServer.Start(ctx); err != nil {
		fatal("MLLP sunucu başlatılamadı", err)
	}
	defer mllpServer.Stop()

	client := hl7.NewMLLPClient(cfg.OutboundHost, cfg.OutboundPort, cfg.OutboundMaxConns)
	defer client.Close()

	forwarder := consumers.NewMessageForwarder(js, client, dlq, stats, cfg.OutboundEndpoint())
	if err := forwarder.Start(ctx); err != nil {
		fatal("Message forwarder başlatılamadı", err)
	}

	ingestor := consumers.NewResultIngestor(js, results, stats, cfg.TenantID)
	if err := ingestor.Start(ctx); err != nil {
		fatal("Result ingestor başlatılamadı", err)
	}

	webServer := web.NewServer(js, cfg, web.Deps{
		Recorder: recorder,
		QC:       qcStore,
		DLQ:      dlq,
		Stats:    stats,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			slog.Error("Web sunucu hatası", "error", err)
		}
	}()

	slog.Info("Lab interop başlatıldı",
		"mllpPort", cfg.MLLPListenPort,
		"webPort", cfg.WebPort,
		"outboundEndpoint", cfg.OutboundEndpoint(),
		"tenant", cfg.TenantID,
	)

	printStartupInfo(cfg)

	<-sigChan
	slog.Info("Kapatma sinyali alındı, sunucu kapatılıyor...")

	cancel()
	wg.Wait()

	slog.Info("Lab interop kapatıldı")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func printStartupInfo(cfg *config.Config) {
	info := `
╔═══════════════════════════════════════════════════════════════╗
║                    Lab Interop Başlatıldı                     ║
╠═══════════════════════════════════════════════════════════════╣
║ MLLP Receiver Port   : %-39d ║
║ Web API              : http://localhost:%-22d ║
║                                                               ║
║ Outbound Endpoint    : %-39s ║
║ Tenant               : %-39s ║
║ QC Window            : %-39d ║
╚═══════════════════════════════════════════════════════════════╝
`
	fmt.Printf(info,
		cfg.MLLPListenPort,
		cfg.WebPort,
		cfg.OutboundEndpoint(),
		cfg.TenantID,
		cfg.QCWindowSize,
	)
}
