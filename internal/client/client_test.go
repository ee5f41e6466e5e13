package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/realzhujunhao/jhchat/internal/config"
	"github.com/realzhujunhao/jhchat/internal/crypto"
	"github.com/realzhujunhao/jhchat/internal/wire"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, conn Conn, uid string) (*Client, crypto.RSA, config.EncryptionConfig) {
	t.Helper()
	enc := crypto.RSA{}
	pub, priv, err := enc.GenerateKeyPair(2048)
	require.NoError(t, err)

	encCfg := config.DefaultEncryptionConfig(t.TempDir())
	c, err := Dial(conn, uid, enc, encCfg, priv, pub, discardLogger())
	require.NoError(t, err)
	return c, enc, encCfg
}

func TestDialSendsLoginFirst(t *testing.T) {
	server, clientConn := net.Pipe()
	defer server.Close()

	_, _, _ = newTestClient(t, clientConn, "alice")

	dec := wire.NewDecoder()
	buf := make([]byte, 256)
	server.SetReadDeadline(time.Now().Add(time.Second))
	for {
		msg, ok, _ := dec.Decode()
		if ok {
			require.Equal(t, wire.CommandLogin, msg.Command)
			require.Equal(t, "alice", msg.Sender)
			return
		}
		n, err := server.Read(buf)
		require.NoError(t, err)
		dec.Write(buf[:n])
	}
}

func TestReadPumpDecryptsIncomingText(t *testing.T) {
	server, clientConn := net.Pipe()
	defer server.Close()

	c, enc, _ := newTestClient(t, clientConn, "bob")
	readServerFrame(t, server) // consume Login

	ciphertext, err := enc.Encrypt([]byte("hi bob"), c.pub)
	require.NoError(t, err)
	require.NoError(t, wire.Encode(server, wire.SendTextMessage("bob", ciphertext).WithSender("alice")))

	select {
	case ev := <-c.Events():
		got, ok := ev.(TextReceived)
		require.True(t, ok)
		require.Equal(t, "alice", got.From)
		require.Equal(t, "hi bob", got.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

func TestGetPubKeyRequestRespondsWithOwnKey(t *testing.T) {
	server, clientConn := net.Pipe()
	defer server.Close()

	c, _, _ := newTestClient(t, clientConn, "bob")
	readServerFrame(t, server) // consume Login

	require.NoError(t, wire.Encode(server, wire.GetPubKeyMessage("bob").WithSender("alice")))

	msg := readServerFrame(t, server)
	require.Equal(t, wire.CommandSendPubKey, msg.Command)
	require.Equal(t, "alice", msg.Receiver)

	imported, err := crypto.RSA{}.ImportPublicKey(msg.Content)
	require.NoError(t, err)
	require.Equal(t, c.pub.N, imported.N)
}

func TestSendTextWaitsForKeyThenEncrypts(t *testing.T) {
	server, clientConn := net.Pipe()
	defer server.Close()

	c, enc, _ := newTestClient(t, clientConn, "alice")
	readServerFrame(t, server) // consume Login

	peerPub, peerPriv, err := enc.GenerateKeyPair(2048)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- c.SendText(ctx, "bob", "secret")
	}()

	// Client should first ask for bob's key.
	getPubKey := readServerFrame(t, server)
	require.Equal(t, wire.CommandGetPubKey, getPubKey.Command)
	require.Equal(t, "bob", getPubKey.Receiver)

	pemBytes, err := enc.ExportPublicKey(peerPub)
	require.NoError(t, err)
	require.NoError(t, wire.Encode(server, wire.SendPubKeyMessage("alice", pemBytes).WithSender("bob")))

	require.NoError(t, <-done)

	sendMsg := readServerFrame(t, server)
	require.Equal(t, wire.CommandSendMsg, sendMsg.Command)
	require.Equal(t, "bob", sendMsg.Receiver)

	plaintext, err := enc.Decrypt(sendMsg.Content, peerPriv)
	require.NoError(t, err)
	require.Equal(t, "secret", string(plaintext))
}

func readServerFrame(t *testing.T, conn net.Conn) wire.Message {
	t.Helper()
	dec := wire.NewDecoder()
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		msg, ok, _ := dec.Decode()
		if ok {
			return *msg
		}
		n, err := conn.Read(buf)
		require.NoError(t, err)
		dec.Write(buf[:n])
	}
}
