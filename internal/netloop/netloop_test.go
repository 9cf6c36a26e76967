//go:build linux

package netloop

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/chatlog"
	"chatserver/internal/codec"
	"chatserver/internal/conntable"
	"chatserver/internal/workerpool"
)

func TestAcceptReadDispatchRoundTrip(t *testing.T) {
	listenFd, err := Listen(0)
	require.NoError(t, err)
	port, err := BoundPort(listenFd)
	require.NoError(t, err)

	conns := conntable.New()
	pool := workerpool.New(2, 16, nil)
	defer pool.Shutdown()
	log, err := chatlog.New("")
	require.NoError(t, err)

	var mu sync.Mutex
	var received []string

	loop, err := New(listenFd, conns, pool, log, func(h conntable.Handle, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	go loop.Run()
	defer loop.Stop()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(codec.Encode([]byte("/whoami")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "/whoami", received[0])
	mu.Unlock()
}
