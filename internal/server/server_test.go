package server

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/realzhujunhao/jhchat/internal/config"
	"github.com/realzhujunhao/jhchat/internal/wire"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestServerAcceptsAndRoutesBetweenTwoClients(t *testing.T) {
	srv, err := Listen(config.ServerConfig{IP: "127.0.0.1", Port: "0"}, discardLogger())
	require.NoError(t, err)
	defer srv.Close()

	go srv.Serve()

	alice, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer alice.Close()
	bob, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, wire.Encode(alice, wire.LoginMessage("alice")))
	require.NoError(t, wire.Encode(bob, wire.LoginMessage("bob")))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, wire.Encode(alice, wire.SendTextMessage("bob", []byte("hi"))))

	dec := wire.NewDecoder()
	buf := make([]byte, 4096)
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		msg, ok, _ := dec.Decode()
		if ok {
			require.Equal(t, "alice", msg.Sender)
			require.Equal(t, []byte("hi"), msg.Content)
			break
		}
		n, err := bob.Read(buf)
		require.NoError(t, err)
		dec.Write(buf[:n])
	}
}
