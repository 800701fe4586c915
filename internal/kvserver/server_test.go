package kvserver

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func startTestServer(t *testing.T) (addr string, engine *lsm.Engine) {
	engine, err := lsm.Open(lsm.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	srv := New("127.0.0.1:0", engine, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.listener = ln
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn)
		}
	}()
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String(), engine
}

func TestServerPutGetOverTCP(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	conn.Write([]byte("PUT a 1\n"))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK OK\r\n", line)

	conn.Write([]byte("GET a\n"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+VALUE 1\r\n", line)

	conn.Write([]byte("DELETE a\n"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK OK\r\n", line)

	conn.Write([]byte("GET a\n"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "-ERR NOT_FOUND\r\n", line)
}

func TestServerPingAndQuit(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	conn.Write([]byte("PING\n"))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK PONG\r\n", line)

	conn.Write([]byte("QUIT\n"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "+OK BYE\r\n", line)
}
