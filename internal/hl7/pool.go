package hl7

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

var ErrPoolClosed = errors.New("bağlantı havuzu kapalı")

const maxIdleAge = 5 * time.Minute

// ConnectionPool keeps idle MLLP connections to one endpoint.
type ConnectionPool struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
	idle    chan *poolConn
	mu      sync.Mutex
	closed  bool
}

type poolConn struct {
	net.Conn
	lastUsed time.Time
}

// NewConnectionPool creates a pool holding at most maxConns idle connections.
func NewConnectionPool(host string, port int, maxConns int) *ConnectionPool {
	if maxConns <= 0 {
		maxConns = 5
	}

	return &ConnectionPool{
		addr:    net.JoinHostPort(host, fmt.Sprint(port)),
		timeout: 30 * time.Second,
		dialer:  net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
		idle:    make(chan *poolConn, maxConns),
	}
}

// Addr returns the pooled endpoint.
func (p *ConnectionPool) Addr() string {
	return p.addr
}

// Get returns a live idle connection or dials a new one.
func (p *ConnectionPool) Get(ctx context.Context) (*poolConn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	for {
		select {
		case pc, ok := <-p.idle:
			if !ok {
				return nil, ErrPoolClosed
			}
			if time.Since(pc.lastUsed) > maxIdleAge || !isConnectionAlive(pc.Conn) {
				pc.Conn.Close()
				slog.Debug("Eski bağlantı kapatıldı", "address", p.addr)
				continue
			}
			return pc, nil
		default:
		}
		break
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("bağlantı hatası %s: %w", p.addr, err)
	}

	slog.Debug("Yeni bağlantı oluşturuldu", "address", p.addr)
	return &poolConn{Conn: conn, lastUsed: time.Now()}, nil
}

// Put returns a healthy connection to the pool.
func (p *ConnectionPool) Put(pc *poolConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		pc.Conn.Close()
		return
	}

	pc.lastUsed = time.Now()
	select {
	case p.idle <- pc:
	default:
		pc.Conn.Close()
	}
}

// Discard closes a connection that failed mid-exchange.
func (p *ConnectionPool) Discard(pc *poolConn) {
	pc.Conn.Close()
}

// Close closes all idle connections; later Gets fail.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.idle)
	for pc := range p.idle {
		pc.Conn.Close()
	}

	return nil
}

// isConnectionAlive peeks for EOF with a very short deadline. A timeout
// means the peer is still there.
func isConnectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer conn.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	_, err := conn.Read(one)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
