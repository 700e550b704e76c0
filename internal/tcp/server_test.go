package tcp

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerEchoesOverRealLoopbackSocket exercises the full
// acceptor/I-O-loop/connection pipeline over a real TCP loopback
// connection: accept, read, echo, close.
func TestServerEchoesOverRealLoopbackSocket(t *testing.T) {
	const addr = "127.0.0.1:18171"

	srv, err := NewServer("echo-test", addr, 1, false)
	require.NoError(t, err)

	srv.SetCallbacks(
		nil,
		func(c *Connection) {
			data := c.Input().RetrieveAllToBytes()
			c.Send(data)
		},
		nil,
	)

	go srv.Start()
	defer srv.Stop()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ping\n", line)
}
