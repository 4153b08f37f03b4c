package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/minasoft/lab-interop/internal/config"
	"github.com/minasoft/lab-interop/internal/db"
	store "github.com/minasoft/lab-interop/internal/nats"
	"github.com/minasoft/lab-interop/internal/qc"
	"github.com/nats-io/nats.go/jetstream"
)

// Deps are the stores behind the API. Any of them may be nil; routes that
// need a missing one answer 503.
type Deps struct {
	Recorder *qc.Recorder
	QC       *store.QCStore
	DLQ      *store.DeadLetters
	Stats    *store.Stats
}

type Server struct {
	echo   *echo.Echo
	js     jetstream.JetStream
	config *config.Config
	deps   Deps
}

func NewServer(js jetstream.JetStream, cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		js:     js,
		config: cfg,
		deps:   deps,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.WebPort)
	slog.Info("Web sunucu başlatılıyor", "port", s.config.WebPort)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("Web sunucu hatası", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/streams", s.handleGetStreams)
	api.GET("/consumers", s.handleGetConsumers)
	api.GET("/dlq", s.handleGetDLQ)
	api.POST("/dlq/:id/retry", s.handleRetryDLQ)

	hl7 := api.Group("/hl7")
	hl7.POST("/parse", s.handleParse)
	hl7.POST("/validate", s.handleValidate)
	hl7.POST("/generate", s.handleGenerate)
	hl7.POST("/send", s.handleSend)

	qcg := api.Group("/qc")
	qcg.POST("/evaluate", s.handleEvaluate)
	qcg.POST("/statistics", s.handleStatistics)
	qcg.POST("/results", s.handleRecordResult)
	qcg.GET("/results", s.handleListResults)
	qcg.PUT("/targets", s.handlePutTarget)
}

var errUnavailable = echo.NewHTTPError(http.StatusServiceUnavailable, "Servis hazır değil")

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	components := make(map[string]string)
	overallStatus := "healthy"

	if s.js == nil {
		components["nats"] = "unhealthy: not initialized"
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":     "unhealthy",
			"timestamp":  time.Now(),
			"components": components,
		})
	}

	if _, err := s.js.AccountInfo(ctx); err != nil {
		components["nats"] = "unhealthy: " + err.Error()
		overallStatus = "degraded"
	} else {
		components["nats"] = "healthy"
	}

	for _, name := range store.AllStreams {
		key := strings.ToLower(name)
		stream, err := s.js.Stream(ctx, name)
		if err != nil {
			components[key] = "unhealthy: stream not found"
			overallStatus = "degraded"
			continue
		}
		if info, _ := stream.Info(ctx); info != nil {
			components[key] = fmt.Sprintf("healthy (messages: %d)", info.State.Msgs)
		} else {
			components[key] = "healthy"
		}
	}

	for _, bucket := range []string{store.BucketQCTargets, store.BucketQCWindows, store.BucketLabResults, store.BucketStats, store.BucketDLQ} {
		key := strings.ToLower(bucket)
		kv, err := s.js.KeyValue(ctx, bucket)
		if err != nil {
			components[key] = "unhealthy"
			overallStatus = "degraded"
			continue
		}
		if status, _ := kv.Status(ctx); status != nil {
			components[key] = fmt.Sprintf("healthy (values: %d)", status.Values())
		} else {
			components[key] = "healthy"
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     overallStatus,
		"timestamp":  time.Now(),
		"components": components,
		"version":    "1.0.0",
	})
}

func (s *Server) handleStats(c echo.Context) error {
	if s.deps.Stats == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()

	counters := make(map[string]int64, len(store.StatKeys))
	for _, key := range store.StatKeys {
		counters[key] = s.deps.Stats.Get(ctx, key)
	}

	stats := map[string]interface{}{
		"counters": counters,
	}
	if v, ok := s.deps.Stats.Raw(ctx, store.StatLastInboundTime); ok {
		stats[store.StatLastInboundTime] = v
	}
	if v, ok := s.deps.Stats.Raw(ctx, store.StatLastOutboundTime); ok {
		stats[store.StatLastOutboundTime] = v
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetStreams(c echo.Context) error {
	if s.js == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()
	streams := []db.StreamInfo{}

	for _, streamName := range store.AllStreams {
		stream, err := s.js.Stream(ctx, streamName)
		if err != nil {
			continue
		}

		info, err := stream.Info(ctx)
		if err != nil {
			continue
		}

		streams = append(streams, db.StreamInfo{
			Name:          info.Config.Name,
			Messages:      info.State.Msgs,
			Bytes:         info.State.Bytes,
			FirstSequence: info.State.FirstSeq,
			LastSequence:  info.State.LastSeq,
		})
	}

	return c.JSON(http.StatusOK, streams)
}

func (s *Server) handleGetConsumers(c echo.Context) error {
	if s.js == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()
	consumers := []db.ConsumerInfo{}

	for _, streamName := range store.HL7Streams {
		stream, err := s.js.Stream(ctx, streamName)
		if err != nil {
			continue
		}

		names := stream.ConsumerNames(ctx)
		for name := range names.Name() {
			consumer, err := stream.Consumer(ctx, name)
			if err != nil {
				continue
			}

			info, err := consumer.Info(ctx)
			if err != nil {
				continue
			}

			consumers = append(consumers, db.ConsumerInfo{
				Stream:          streamName,
				Name:            info.Name,
				Pending:         info.NumPending,
				Delivered:       info.Delivered.Consumer,
				AckPending:      uint64(info.NumAckPending),
				RedeliveryCount: uint64(info.NumRedelivered),
			})
		}
	}

	return c.JSON(http.StatusOK, consumers)
}
