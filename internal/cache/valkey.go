package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
	KeyPrefix    string
}

// ValkeyProvider implements Provider with one short-lived RESP connection per command.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider validates cfg and pings the server so misconfiguration fails at startup.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	p := &ValkeyProvider{cfg: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	reply, err := p.do(ctx, "PING")
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	if reply.kind != '+' || reply.text() != "PONG" {
		return nil, fmt.Errorf("valkey ping: unexpected reply %q", reply.text())
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := p.do(ctx, "GET", p.key(key))
	if err != nil {
		return nil, err
	}
	switch {
	case reply.null:
		return nil, ErrCacheMiss
	case reply.kind == '$':
		return reply.data, nil
	default:
		return nil, fmt.Errorf("valkey GET: unexpected reply type %q", reply.kind)
	}
}

// Set stores bytes with the provided TTL (millisecond precision).
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	reply, err := p.do(ctx, p.setArgs(key, value, ttl, false)...)
	if err != nil {
		return err
	}
	if reply.kind != '+' || reply.text() != "OK" {
		return fmt.Errorf("valkey SET: unexpected reply %q", reply.text())
	}
	return nil
}

// SetNX stores the value only if the key does not exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	reply, err := p.do(ctx, p.setArgs(key, value, ttl, true)...)
	if err != nil {
		return false, err
	}
	return !reply.null && reply.kind == '+', nil
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	_, err := p.do(ctx, "DEL", p.key(key))
	return err
}

// Close is a no-op; connections are not pooled.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) key(k string) string {
	return p.cfg.KeyPrefix + k
}

func (p *ValkeyProvider) setArgs(key string, value []byte, ttl time.Duration, nx bool) []any {
	args := []any{"SET", p.key(key), value}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	if nx {
		args = append(args, "NX")
	}
	return args
}

// do runs one command, retrying transient network errors with exponential backoff.
func (p *ValkeyProvider) do(ctx context.Context, args ...any) (respValue, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return respValue{}, err
		}
		reply, err := p.once(ctx, args)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		select {
		case <-ctx.Done():
			return respValue{}, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * 25 * time.Millisecond):
		}
	}
	return respValue{}, lastErr
}

func (p *ValkeyProvider) once(ctx context.Context, args []any) (respValue, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return respValue{}, err
	}
	defer conn.Close()

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	session := &respSession{conn: conn, rw: rw, cfg: p.cfg}

	if p.cfg.Password != "" {
		auth := []any{"AUTH"}
		if p.cfg.Username != "" {
			auth = append(auth, p.cfg.Username)
		}
		auth = append(auth, p.cfg.Password)
		if err := session.expectOK(auth); err != nil {
			return respValue{}, fmt.Errorf("valkey auth: %w", err)
		}
	}
	if p.cfg.DB > 0 {
		if err := session.expectOK([]any{"SELECT", strconv.Itoa(p.cfg.DB)}); err != nil {
			return respValue{}, fmt.Errorf("valkey select: %w", err)
		}
	}
	return session.roundTrip(args)
}

func (p *ValkeyProvider) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	if p.cfg.TLS {
		host, _, err := net.SplitHostPort(p.cfg.Addr)
		if err != nil {
			host = p.cfg.Addr
		}
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}}
		return td.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	return dialer.DialContext(ctx, "tcp", p.cfg.Addr)
}

// respValue is the subset of RESP2 replies the provider understands.
type respValue struct {
	kind byte
	data []byte
	null bool
}

func (v respValue) text() string { return string(v.data) }

type respSession struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	cfg  ValkeyConfig
}

func (s *respSession) expectOK(args []any) error {
	reply, err := s.roundTrip(args)
	if err != nil {
		return err
	}
	if reply.kind != '+' || !strings.EqualFold(reply.text(), "OK") {
		return fmt.Errorf("unexpected reply %q", reply.text())
	}
	return nil
}

func (s *respSession) roundTrip(args []any) (respValue, error) {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return respValue{}, err
	}
	fmt.Fprintf(s.rw, "*%d\r\n", len(args))
	for _, arg := range args {
		var b []byte
		switch v := arg.(type) {
		case []byte:
			b = v
		case string:
			b = []byte(v)
		default:
			b = []byte(fmt.Sprint(v))
		}
		fmt.Fprintf(s.rw, "$%d\r\n", len(b))
		s.rw.Write(b)
		s.rw.WriteString("\r\n")
	}
	if err := s.rw.Flush(); err != nil {
		return respValue{}, err
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return respValue{}, err
	}
	return readReply(s.rw.Reader)
}

func readReply(r *bufio.Reader) (respValue, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return respValue{}, err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return respValue{}, errors.New("empty RESP line")
	}
	kind, body := line[0], line[1:]
	switch kind {
	case '+', ':':
		return respValue{kind: kind, data: []byte(body)}, nil
	case '-':
		return respValue{}, &respError{msg: body}
	case '$':
		size, err := strconv.Atoi(body)
		if err != nil {
			return respValue{}, fmt.Errorf("bulk length: %w", err)
		}
		if size < 0 {
			return respValue{kind: kind, null: true}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return respValue{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respValue{}, errors.New("invalid bulk termination")
		}
		return respValue{kind: kind, data: buf[:size]}, nil
	default:
		return respValue{}, fmt.Errorf("unexpected RESP prefix %q", kind)
	}
}

type respError struct{ msg string }

func (e *respError) Error() string { return "valkey: " + e.msg }

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
