package hl7

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minasoft/lab-interop/internal/db"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the part of jetstream.JetStream the listener needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// InboundSubject returns the JetStream subject for an inbound message type.
func InboundSubject(messageType string) string {
	if messageType == "" {
		messageType = "unknown"
	}
	return "hl7.inbound." + strings.ToLower(messageType)
}

// OutboundSubject returns the JetStream subject for a message queued for the
// outbound destination.
func OutboundSubject(messageType string) string {
	if messageType == "" {
		messageType = "unknown"
	}
	return "hl7.outbound." + strings.ToLower(messageType)
}

type invalidMessageError struct {
	errors []string
}

func (e *invalidMessageError) Error() string {
	return "geçersiz HL7 mesajı: " + strings.Join(e.errors, "; ")
}

// MLLPServer accepts framed HL7 messages from instruments and the HIS,
// validates them and queues them on JetStream.
type MLLPServer struct {
	port     int
	js       Publisher
	listener net.Listener
}

func NewMLLPServer(port int, js Publisher) *MLLPServer {
	return &MLLPServer{
		port: port,
		js:   js,
	}
}

func (s *MLLPServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port dinlenemedi %s: %w", addr, err)
	}
	s.listener = listener

	slog.Info("HL7 MLLP sunucu başlatıldı", "port", s.port, "address", addr)

	go s.acceptConnections(ctx)
	return nil
}

// Addr returns the bound listener address.
func (s *MLLPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *MLLPServer) acceptConnections(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Bağlantı kabul hatası", "error", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *MLLPServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	slog.Info("Yeni HL7 bağlantısı", "remoteAddr", remoteAddr)

	reader := bufio.NewReader(conn)

	for {
		if ctx.Err() != nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		payload, err := ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Info("Bağlantı kapatıldı", "remoteAddr", remoteAddr)
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Error("Mesaj okuma hatası", "error", err, "remoteAddr", remoteAddr)
			return
		}

		msg := ParseMessage(payload)
		ackCode, ackText := AckAccept, ""
		if err := s.processMessage(ctx, msg, payload, remoteAddr); err != nil {
			slog.Error("Mesaj işleme hatası", "error", err, "remoteAddr", remoteAddr)
			ackCode, ackText = AckError, err.Error()
			var invalid *invalidMessageError
			if errors.As(err, &invalid) {
				ackCode = AckReject
			}
		}

		if _, err := conn.Write(CreateACK(msg, ackCode, ackText)); err != nil {
			slog.Error("ACK gönderilemedi", "error", err, "remoteAddr", remoteAddr)
			return
		}
	}
}

func (s *MLLPServer) processMessage(ctx context.Context, parsed *Message, raw []byte, sourceAddr string) error {
	if v := ValidateMessage(parsed); !v.Valid {
		return &invalidMessageError{errors: v.Errors}
	}

	labMsg := NewLabMessage(parsed, raw, db.DirectionInbound)
	labMsg.SourceAddr = sourceAddr

	data, err := json.Marshal(labMsg)
	if err != nil {
		return fmt.Errorf("mesaj serialize hatası: %w", err)
	}

	subject := InboundSubject(parsed.MessageType)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("NATS publish hatası: %w", err)
	}

	slog.Info("HL7 mesaj alındı ve kuyruğa eklendi",
		"id", labMsg.ID,
		"messageType", labMsg.MessageType,
		"controlID", labMsg.MessageControlID,
		"patientID", labMsg.PatientID,
		"source", sourceAddr)

	return nil
}

// NewLabMessage wraps a parsed message in the record that travels on the
// HL7 streams.
func NewLabMessage(parsed *Message, raw []byte, direction string) *db.LabMessage {
	now := time.Now()
	labMsg := &db.LabMessage{
		ID:               uuid.New().String(),
		Timestamp:        now,
		Direction:        direction,
		MessageType:      parsed.MessageType,
		TriggerEvent:     parsed.TriggerEvent,
		MessageControlID: parsed.MessageControlID,
		RawMessage:       raw,
		Status:           db.StatusPending,
		CreatedAt:        now,
	}

	if seg, ok := parsed.Segment("PID"); ok {
		pid := DecodePID(seg, parsed.Delimiters)
		if len(pid.Identifiers) > 0 {
			labMsg.PatientID = pid.Identifiers[0].ID
		}
		if len(pid.Names) > 0 {
			n := pid.Names[0]
			labMsg.PatientName = strings.TrimSpace(n.Given + " " + n.Family)
		}
	}

	return labMsg
}

func (s *MLLPServer) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
