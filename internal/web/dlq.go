package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/minasoft/lab-interop/internal/db"
	"github.com/minasoft/lab-interop/internal/hl7"
	store "github.com/minasoft/lab-interop/internal/nats"
)

func (s *Server) handleGetDLQ(c echo.Context) error {
	if s.deps.DLQ == nil {
		return errUnavailable
	}

	messages, err := s.deps.DLQ.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "DLQ erişilemedi")
	}
	return c.JSON(http.StatusOK, messages)
}

// handleRetryDLQ republishes a dead letter to HL7_OUTBOUND with a fresh
// retry count and removes it from the DLQ.
func (s *Server) handleRetryDLQ(c echo.Context) error {
	if s.deps.DLQ == nil || s.js == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()
	messageID := c.Param("id")

	msg, err := s.deps.DLQ.Get(ctx, messageID)
	if errors.Is(err, store.ErrNotInDLQ) {
		return echo.NewHTTPError(http.StatusNotFound, "Mesaj bulunamadı")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "DLQ erişilemedi")
	}

	msg.RetryCount = 0
	msg.Status = db.StatusPending
	msg.LastError = ""

	msgData, err := json.Marshal(msg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Mesaj serialize edilemedi")
	}

	subject := hl7.OutboundSubject(msg.MessageType)
	if _, err := s.js.Publish(ctx, subject, msgData); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Mesaj yeniden gönderilemedi: "+err.Error())
	}

	if err := s.deps.DLQ.Delete(ctx, messageID); err != nil {
		slog.Error("DLQ'dan mesaj silinemedi", "id", messageID, "error", err)
	}

	slog.Info("Mesaj yeniden kuyruğa alındı",
		"messageID", messageID,
		"subject", subject)

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Mesaj yeniden kuyruğa alındı",
		"subject": subject,
	})
}
