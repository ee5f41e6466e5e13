// Package client implements the chat client runtime: a read pump that
// decodes and reacts to inbound frames, a write pump that drains an
// outbound queue onto the socket, and the key-exchange bookkeeping that
// sits between them. It replaces the original's busy-wait on a key file
// appearing on disk with a per-uid waiter channel, per the redesign note
// on cooperative busy-waiting.
package client

import (
	"context"
	"crypto/rsa"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/realzhujunhao/jhchat/internal/config"
	"github.com/realzhujunhao/jhchat/internal/crypto"
	"github.com/realzhujunhao/jhchat/internal/errs"
	"github.com/realzhujunhao/jhchat/internal/wire"
)

// Conn is the minimal socket surface the client needs; satisfied by
// net.Conn and by net.Pipe halves in tests.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Event is one of TextReceived, OnlineList, or Notice, delivered on a
// Client's Events channel for a CLI (or any other front end) to render.
type Event interface{}

// TextReceived is a decrypted message from another user.
type TextReceived struct {
	From string
	Text string
}

// OnlineList is the server's reply to a list request.
type OnlineList struct {
	Content string
}

// Notice is a human-readable status line not tied to a specific command.
type Notice struct {
	Message string
}

// Client owns one authenticated connection to the server.
type Client struct {
	conn Conn
	dec  *wire.Decoder
	uid  string

	enc        crypto.Encryptor
	encryption config.EncryptionConfig
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey

	log *logrus.Entry

	outbound chan wire.Message
	events   chan Event

	keyMu        sync.Mutex
	keyWaiters   map[string]chan struct{}
	warnedUnsafe map[string]bool
}

// Dial authenticates uid over conn and starts the read and write pumps.
// The caller owns conn's lifetime via Close.
func Dial(conn Conn, uid string, enc crypto.Encryptor, encryption config.EncryptionConfig,
	priv *rsa.PrivateKey, pub *rsa.PublicKey, log *logrus.Logger) (*Client, error) {

	if err := wire.Encode(conn, wire.LoginMessage(uid)); err != nil {
		return nil, errs.Wrap(errs.SourceClient, errs.CannotEstablishConnection, err)
	}

	c := &Client{
		conn:         conn,
		dec:          wire.NewDecoder(),
		uid:          uid,
		enc:          enc,
		encryption:   encryption,
		priv:         priv,
		pub:          pub,
		log:          log.WithField("uid", uid),
		outbound:     make(chan wire.Message, 256),
		events:       make(chan Event, 256),
		keyWaiters:   make(map[string]chan struct{}),
		warnedUnsafe: make(map[string]bool),
	}

	go c.readPump()
	go c.writePump()
	return c, nil
}

// Events is where decoded, reacted-to frames surface for display.
func (c *Client) Events() <-chan Event { return c.events }

// Send enqueues a raw frame for the write pump. Most callers want
// RequestOnlineList or SendText instead.
func (c *Client) Send(msg wire.Message) {
	select {
	case c.outbound <- msg:
	default:
		c.log.Warn("outbound queue full, dropping frame")
	}
}

// Close tears down the connection; the read pump exits once its read
// fails, and the write pump exits the next time it tries to write a frame.
func (c *Client) Close() error {
	return c.conn.Close()
}

// RequestOnlineList asks the server for the current roster.
func (c *Client) RequestOnlineList() {
	c.Send(wire.Message{Receiver: wire.ServerUID, Command: wire.CommandOnlineList})
}

// SendText encrypts text for to and sends it. If to's public key isn't
// cached locally it is requested from the server and SendText blocks
// (cancellable via ctx) until the read pump's SendPubKey handler persists
// it — replacing a busy-wait on file existence with a direct notification.
// If the key arrived only in-band and disagrees with a previously trusted
// out-of-band copy, a dummy message is sent instead and an error is
// returned so the caller can warn the user, per the unsafe-key policy.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	key, mismatched, err := c.peerKey(ctx, to)
	if err != nil {
		return err
	}

	if mismatched && !c.encryption.SendOnUnsafe && !c.warnedUnsafe[to] {
		c.warnedUnsafe[to] = true
		dummy, err := c.enc.Encrypt([]byte(c.encryption.DummyMessage), key)
		if err != nil {
			return errs.Wrap(errs.SourceClient, errs.Encryption, err)
		}
		c.Send(wire.SendTextMessage(to, dummy))
		return errs.Client(errs.Encryption, "received key for "+to+" disagrees with the trusted copy; sent a dummy message instead")
	}

	ciphertext, err := c.enc.Encrypt([]byte(text), key)
	if err != nil {
		return errs.Wrap(errs.SourceClient, errs.Encryption, err)
	}
	c.Send(wire.SendTextMessage(to, ciphertext))
	return nil
}

// peerKey resolves uid's public key to the copy exchanged in-band via the
// server in UnsafeKeyDir, requesting it first if it is not on disk yet.
// An out-of-band copy in SafeKeyDir is never returned; it is only compared
// against: mismatched reports whether the in-band copy disagrees with a
// SafeKeyDir copy that already existed.
func (c *Client) peerKey(ctx context.Context, uid string) (key *rsa.PublicKey, mismatched bool, err error) {
	unsafePath := filepath.Join(c.encryption.UnsafeKeyDir, uid)
	unsafeKey, readErr := crypto.ReadPublicKey(c.enc, unsafePath)
	if readErr != nil {
		c.Send(wire.GetPubKeyMessage(uid))
		if err := c.waitForKey(ctx, uid); err != nil {
			return nil, false, errs.Wrap(errs.SourceClient, errs.CannotEstablishConnection, err)
		}
		unsafeKey, readErr = crypto.ReadPublicKey(c.enc, unsafePath)
		if readErr != nil {
			return nil, false, readErr
		}
	}

	safeKey, safeErr := crypto.ReadPublicKey(c.enc, filepath.Join(c.encryption.SafeKeyDir, uid))
	if safeErr == nil && safeKey.N.Cmp(unsafeKey.N) != 0 {
		return unsafeKey, true, nil
	}
	return unsafeKey, false, nil
}

// waitForKey blocks until notifyKeyArrived(uid) is called or ctx ends.
func (c *Client) waitForKey(ctx context.Context, uid string) error {
	c.keyMu.Lock()
	ch, ok := c.keyWaiters[uid]
	if !ok {
		ch = make(chan struct{})
		c.keyWaiters[uid] = ch
	}
	c.keyMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) notifyKeyArrived(uid string) {
	c.keyMu.Lock()
	ch, ok := c.keyWaiters[uid]
	if ok {
		delete(c.keyWaiters, uid)
	}
	c.keyMu.Unlock()
	if ok {
		close(ch)
	}
}

// readPump decodes inbound frames and reacts to each per command, mirroring
// the dispatch table the original worker's read_stream implements.
func (c *Client) readPump() {
	defer close(c.events)

	buf := make([]byte, 4096)
	for {
		msg, ok, _ := c.dec.Decode()
		if !ok {
			n, err := c.conn.Read(buf)
			if err != nil {
				c.log.WithError(err).Debug("read pump exiting")
				return
			}
			c.dec.Write(buf[:n])
			continue
		}
		c.handleInbound(*msg)
	}
}

func (c *Client) handleInbound(msg wire.Message) {
	log := c.log.WithField("command", msg.Command.String())
	switch msg.Command {
	case wire.CommandSendMsg:
		plaintext, err := c.enc.Decrypt(msg.Content, c.priv)
		if err != nil {
			log.WithError(err).Warn("failed to decrypt incoming message")
			return
		}
		c.events <- TextReceived{From: msg.Sender, Text: string(plaintext)}

	case wire.CommandGetPubKey:
		pemBytes, err := c.enc.ExportPublicKey(c.pub)
		if err != nil {
			log.WithError(err).Warn("failed to export own public key")
			return
		}
		c.Send(wire.SendPubKeyMessage(msg.Sender, pemBytes))

	case wire.CommandSendPubKey:
		if err := os.MkdirAll(c.encryption.UnsafeKeyDir, 0o700); err != nil {
			log.WithError(err).Warn("failed to create unsafe key directory")
			return
		}
		path := filepath.Join(c.encryption.UnsafeKeyDir, msg.Sender)
		if err := os.WriteFile(path, msg.Content, 0o600); err != nil {
			log.WithError(err).Warn("failed to persist received public key")
			return
		}
		c.notifyKeyArrived(msg.Sender)

	case wire.CommandOnlineList:
		c.events <- OnlineList{Content: string(msg.Content)}

	case wire.CommandHelp:
		c.events <- Notice{Message: "server: " + string(msg.Content)}

	default:
		log.Warn("unhandled frame from server")
	}
}

// writePump drains outbound and encodes each frame onto the socket.
func (c *Client) writePump() {
	for msg := range c.outbound {
		if err := wire.Encode(c.conn, msg); err != nil {
			c.log.WithError(err).Debug("write pump exiting")
			return
		}
	}
}
