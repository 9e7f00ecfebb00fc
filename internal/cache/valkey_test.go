package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeValkey speaks just enough RESP for PING/GET/SET/DEL.
type fakeValkey struct {
	ln    net.Listener
	mu    sync.Mutex
	store map[string]string
}

func newFakeValkey(t *testing.T) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeValkey{ln: ln, store: make(map[string]string)}
	go f.serve()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		f.mu.Lock()
		switch strings.ToUpper(args[0]) {
		case "PING":
			io.WriteString(conn, "+PONG\r\n")
		case "GET":
			if v, ok := f.store[args[1]]; ok {
				fmt.Fprintf(conn, "$%d\r\n%s\r\n", len(v), v)
			} else {
				io.WriteString(conn, "$-1\r\n")
			}
		case "SET":
			nx := strings.EqualFold(args[len(args)-1], "NX")
			if _, exists := f.store[args[1]]; nx && exists {
				io.WriteString(conn, "$-1\r\n")
			} else {
				f.store[args[1]] = args[2]
				io.WriteString(conn, "+OK\r\n")
			}
		case "DEL":
			delete(f.store, args[1])
			io.WriteString(conn, ":1\r\n")
		default:
			io.WriteString(conn, "-ERR unknown command\r\n")
		}
		f.mu.Unlock()
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(header[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sizeLine, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, _ := strconv.Atoi(strings.TrimSpace(sizeLine[1:]))
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	server := newFakeValkey(t)
	p, err := NewValkeyProvider(ValkeyConfig{Addr: server.ln.Addr().String(), KeyPrefix: "es:"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, p.Set(ctx, "k", []byte("payload"), time.Minute))
	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	server.mu.Lock()
	_, prefixed := server.store["es:k"]
	server.mu.Unlock()
	assert.True(t, prefixed)

	ok, err := p.SetNX(ctx, "k", []byte("other"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Del(ctx, "k"))
	_, err = p.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	_, err := NewValkeyProvider(ValkeyConfig{})
	assert.Error(t, err)
}
