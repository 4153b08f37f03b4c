package hl7

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MLLPClient sends messages to a single downstream endpoint over pooled
// connections and waits for the ACK.
type MLLPClient struct {
	pool    *ConnectionPool
	timeout time.Duration
}

func NewMLLPClient(host string, port int, maxConns int) *MLLPClient {
	return &MLLPClient{
		pool:    NewConnectionPool(host, port, maxConns),
		timeout: 30 * time.Second,
	}
}

// SendMessage writes message and returns the parsed ACK. A negative ACK is
// an error; the connection is still returned to the pool in that case.
func (c *MLLPClient) SendMessage(ctx context.Context, message []byte) (*Message, error) {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write(WrapMLLP(message)); err != nil {
		c.pool.Discard(conn)
		return nil, fmt.Errorf("mesaj gönderme hatası: %w", err)
	}

	payload, err := ReadFrame(bufio.NewReader(conn))
	if err != nil {
		c.pool.Discard(conn)
		return nil, fmt.Errorf("ACK okuma hatası: %w", err)
	}
	conn.SetDeadline(time.Time{})
	c.pool.Put(conn)

	ack := ParseMessage(payload)
	ackCode := AckCode(ack)
	if ackCode != AckAccept && ackCode != "CA" {
		return ack, fmt.Errorf("negatif ACK alındı: %s", ackCode)
	}

	slog.Info("HL7 mesaj başarıyla gönderildi",
		"address", c.pool.Addr(),
		"messageControlID", ack.MessageControlID,
		"ackCode", ackCode)

	return ack, nil
}

// Close releases pooled connections.
func (c *MLLPClient) Close() error {
	return c.pool.Close()
}
