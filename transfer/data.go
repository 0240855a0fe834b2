// Package transfer owns the passive-mode data channel and the directory
// listing format. A data channel is single-use: negotiated by one PASV,
// consumed by exactly one LIST, RETR or STOR, then torn down.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"ftpd/protocol"
)

const drainChunkSize = 32 * 1024

// ErrNotOpen is returned by Send and Drain when no data connection has
// been accepted.
var ErrNotOpen = errors.New("transfer: no opened data connection")

// Manager is the per-session passive data-channel state machine. It is
// Idle (no connection) or Open (one accepted, unconsumed connection);
// sessions never share a Manager, so no locking is needed.
type Manager struct {
	bindHost      string
	acceptTimeout time.Duration
	limiter       *rate.Limiter
	logger        *log.Logger

	listener *net.TCPListener
	conn     net.Conn
}

// NewManager creates an idle manager. bindHost is the interface the
// passive listener binds (loopback by default). bwLimit caps data-channel
// throughput in bytes per second; 0 means unlimited.
func NewManager(bindHost string, acceptTimeout time.Duration, bwLimit int64, logger *log.Logger) *Manager {
	var limiter *rate.Limiter
	if bwLimit > 0 {
		burst := int(bwLimit)
		if burst < drainChunkSize {
			burst = drainChunkSize
		}
		limiter = rate.NewLimiter(rate.Limit(bwLimit), burst)
	}
	return &Manager{
		bindHost:      bindHost,
		acceptTimeout: acceptTimeout,
		limiter:       limiter,
		logger:        logger,
	}
}

// Open reports whether an accepted, unconsumed data connection exists.
func (m *Manager) Open() bool {
	return m.conn != nil
}

// Listen binds a fresh passive listener. port 0 picks an ephemeral port;
// a nonzero port honors an earlier PORT request. The returned string is
// the h1,h2,h3,h4,p1,p2 encoding for the 227 reply.
func (m *Manager) Listen(port uint16) (string, error) {
	addr := net.JoinHostPort(m.bindHost, fmt.Sprintf("%d", port))
	l, err := net.Listen("tcp4", addr)
	if err != nil {
		return "", fmt.Errorf("transfer: bind %s: %w", addr, err)
	}
	m.listener = l.(*net.TCPListener)

	tcpAddr := m.listener.Addr().(*net.TCPAddr)
	m.logger.Printf("[DATA] Passive listener ready on %s", tcpAddr)
	return EncodePasvAddr(tcpAddr.IP, tcpAddr.Port), nil
}

// Accept blocks for exactly one inbound connection on the passive
// listener, bounded by the accept timeout. On success the manager is Open;
// on failure the listener is closed and the manager stays Idle.
func (m *Manager) Accept() error {
	if m.listener == nil {
		return errors.New("transfer: no passive listener")
	}
	if m.acceptTimeout > 0 {
		m.listener.SetDeadline(time.Now().Add(m.acceptTimeout))
	}
	conn, err := m.listener.Accept()
	if err != nil {
		m.listener.Close()
		m.listener = nil
		return fmt.Errorf("transfer: accept: %w", err)
	}
	m.conn = conn
	m.logger.Printf("[DATA] Data connection established from %s", conn.RemoteAddr())
	return nil
}

// Send writes data to the data connection as one unit.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	if m.conn == nil {
		return ErrNotOpen
	}
	if err := m.wait(ctx, len(data)); err != nil {
		return err
	}
	_, err := m.conn.Write(data)
	return err
}

// Drain reads the data connection to EOF and returns everything received
// as one unit. A read error aborts the transfer: partial data is not
// returned, so a broken upload can never be silently truncated.
func (m *Manager) Drain(ctx context.Context) ([]byte, error) {
	if m.conn == nil {
		return nil, ErrNotOpen
	}
	var raw protocol.RawCodec
	chunk := make([]byte, drainChunkSize)
	for {
		n, err := m.conn.Read(chunk)
		if n > 0 {
			if werr := m.wait(ctx, n); werr != nil {
				return nil, werr
			}
			raw.Encode(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("transfer: data read: %w", err)
		}
	}
	return raw.Drain(), nil
}

// Close tears down both halves of the channel and returns the manager to
// Idle. Calling it on an idle manager is a no-op.
func (m *Manager) Close() error {
	var result *multierror.Error
	if m.conn != nil {
		result = multierror.Append(result, m.conn.Close())
		m.conn = nil
	}
	if m.listener != nil {
		result = multierror.Append(result, m.listener.Close())
		m.listener = nil
	}
	return result.ErrorOrNil()
}

func (m *Manager) wait(ctx context.Context, n int) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.WaitN(ctx, n)
}

// EncodePasvAddr renders an address in the protocol's comma-separated
// h1,h2,h3,h4,p1,p2 form. Unspecified or non-IPv4 addresses fall back to
// loopback, matching what a client on the same host expects.
func EncodePasvAddr(ip net.IP, port int) string {
	v4 := ip.To4()
	if v4 == nil || v4.IsUnspecified() {
		v4 = net.IPv4(127, 0, 0, 1).To4()
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", v4[0], v4[1], v4[2], v4[3], port>>8, port&0xFF)
}
