package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/minasoft/lab-interop/internal/db"
	"github.com/minasoft/lab-interop/internal/hl7"
	store "github.com/minasoft/lab-interop/internal/nats"
)

const maxHL7Body = 1 << 20

type parseResponse struct {
	Message    *hl7.Message         `json:"message"`
	Validation hl7.ValidationResult `json:"validation"`
	Result     *hl7.ResultMessage   `json:"result,omitempty"`
}

func readHL7Body(c echo.Context) (*hl7.Message, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxHL7Body))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "İstek gövdesi okunamadı")
	}
	if len(body) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Boş HL7 mesajı")
	}
	return hl7.ParseMessage(body), nil
}

// handleParse accepts raw HL7 text (optionally MLLP framed) and returns the
// parsed message, its validation and, for orders and results, the typed
// segment views.
func (s *Server) handleParse(c echo.Context) error {
	msg, err := readHL7Body(c)
	if err != nil {
		return err
	}

	resp := parseResponse{
		Message:    msg,
		Validation: hl7.ValidateMessage(msg),
	}
	switch msg.MessageType {
	case hl7.TypeORU, hl7.TypeORM, hl7.TypeORR:
		rm := hl7.DecodeResultMessage(msg)
		resp.Result = &rm
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleValidate(c echo.Context) error {
	msg, err := readHL7Body(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hl7.ValidateMessage(msg))
}

// buildMessage turns a JSON ResultMessage into HL7 text, filling the sending
// application and facility from configuration when absent.
func (s *Server) buildMessage(c echo.Context) (string, error) {
	var rm hl7.ResultMessage
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, maxHL7Body)).Decode(&rm); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Geçersiz JSON: "+err.Error())
	}
	if rm.MessageType == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "messageType zorunlu")
	}
	if s.config != nil {
		if rm.SendingApplication == "" {
			rm.SendingApplication = s.config.SendingApplication
		}
		if rm.SendingFacility == "" {
			rm.SendingFacility = s.config.SendingFacility
		}
	}

	msg, err := rm.Message(hl7.DefaultDelimiters)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return hl7.GenerateMessage(msg), nil
}

func (s *Server) handleGenerate(c echo.Context) error {
	text, err := s.buildMessage(c)
	if err != nil {
		return err
	}
	return c.String(http.StatusOK, text)
}

// handleSend generates a message and queues it on HL7_OUTBOUND for the
// forwarder.
func (s *Server) handleSend(c echo.Context) error {
	if s.js == nil {
		return errUnavailable
	}
	ctx := c.Request().Context()

	text, err := s.buildMessage(c)
	if err != nil {
		return err
	}

	raw := []byte(text)
	parsed := hl7.ParseMessage(raw)
	labMsg := hl7.NewLabMessage(parsed, raw, db.DirectionOutbound)
	if s.config != nil {
		labMsg.DestinationAddr = s.config.OutboundEndpoint()
	}

	data, err := json.Marshal(labMsg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Mesaj serialize edilemedi")
	}

	subject := hl7.OutboundSubject(labMsg.MessageType)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Mesaj kuyruğa alınamadı: "+err.Error())
	}
	s.deps.Stats.Incr(ctx, store.StatOutboundQueued)

	slog.Info("Outbound mesaj kuyruğa alındı",
		"id", labMsg.ID,
		"messageType", labMsg.MessageType,
		"controlID", labMsg.MessageControlID)

	return c.JSON(http.StatusAccepted, map[string]string{
		"id":        labMsg.ID,
		"controlId": labMsg.MessageControlID,
		"subject":   subject,
	})
}
