// Package session runs the per-connection duplex task: one goroutine
// decodes inbound frames and dispatches them, another drains the
// connection's outbound queue and encodes frames back onto the socket.
// The two never touch each other's state directly — the registry's queue
// handle is the only channel between them, per the no-shared-codec rule.
package session

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/realzhujunhao/jhchat/internal/errs"
	"github.com/realzhujunhao/jhchat/internal/registry"
	"github.com/realzhujunhao/jhchat/internal/wire"
)

// outboundQueueDepth bounds a session's outbound queue. The wire protocol
// models it as unbounded, but an unbounded Go channel isn't a thing; a
// generous bound with drop-on-full backpressure is the idiomatic stand-in
// (the same tradeoff the teacher hub's buffered broadcast channel makes).
const outboundQueueDepth = 256

// readBufferSize is the chunk size pulled off the socket per Read call.
const readBufferSize = 4096

// Serve runs one connection end to end: authenticate, register, duplex
// loop, deregister. It blocks until the connection ends and always leaves
// conn closed and the registry entry removed.
func Serve(conn net.Conn, reg *registry.Registry, log *logrus.Logger) {
	connID := uuid.NewString()
	preAuth := log.WithFields(logrus.Fields{"conn_id": connID, "remote_addr": conn.RemoteAddr()})

	dec := wire.NewDecoder()

	uid, err := authenticate(conn, dec)
	if err != nil {
		preAuth.WithError(err).Warn("authentication failed")
		conn.Close()
		return
	}

	handle := registry.NewHandle(outboundQueueDepth)
	reg.Login(uid, handle)

	entry := log.WithFields(logrus.Fields{"conn_id": connID, "uid": uid, "remote_addr": conn.RemoteAddr()})
	entry.Info("session established")

	s := &session{conn: conn, dec: dec, reg: reg, uid: uid, handle: handle, log: entry, done: make(chan struct{})}
	s.run()

	reg.Logout(uid, handle)
	entry.Info("session ended")
}

// authenticate reads exactly one frame and requires it to be a Login,
// per spec §4.5 step 2. Any other outcome is a fault and the caller must
// not register or proceed to the duplex loop.
func authenticate(conn net.Conn, dec *wire.Decoder) (string, error) {
	msg, err := nextFrame(conn, dec)
	if err != nil {
		return "", errs.Wrap(errs.SourceExternal, errs.IO, err)
	}
	if msg.Command != wire.CommandLogin {
		return "", errs.Server(errs.UnexpectedFrame, "first frame was not Login")
	}
	if msg.Sender == "" {
		return "", errs.Server(errs.UnexpectedFrame, "login with empty uid")
	}
	return msg.Sender, nil
}

// nextFrame blocks on conn.Read until dec has a complete frame to return.
func nextFrame(conn net.Conn, dec *wire.Decoder) (*wire.Message, error) {
	buf := make([]byte, readBufferSize)
	for {
		if msg, ok, _ := dec.Decode(); ok {
			return msg, nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		dec.Write(buf[:n])
	}
}

// session holds the state shared, read-only after construction, between
// the inbound and outbound sub-tasks of one authenticated connection.
type session struct {
	conn   net.Conn
	dec    *wire.Decoder
	reg    *registry.Registry
	uid    string
	handle *registry.Handle
	log    *logrus.Entry

	closeOnce sync.Once
	done      chan struct{} // closed together with conn by closeConn
}

// run starts the two sub-tasks and waits for both to exit. Either one
// returning closes the socket, which unblocks the other at its next
// suspension point, satisfying the "termination of either aborts the
// other" rule in spec §4.5.
func (s *session) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.inbound()
	}()
	go func() {
		defer wg.Done()
		s.outbound()
	}()
	wg.Wait()
}

func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		s.conn.Close()
		close(s.done)
	})
}

// inbound pulls frames out of the decoder, reading more off the socket
// whenever the decoder needs more bytes, and dispatches each complete
// frame. It returns on read error or EOF.
func (s *session) inbound() {
	defer s.closeConn()

	buf := make([]byte, readBufferSize)
	for {
		msg, ok, _ := s.dec.Decode()
		if ok {
			s.dispatch(*msg)
			continue
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).Debug("read failed")
			}
			return
		}
		s.dec.Write(buf[:n])
	}
}

// outbound drains the session's queue handle and encodes each frame onto
// the socket, or exits if the handle is evicted by a later Login for the
// same uid or the connection has been closed.
func (s *session) outbound() {
	defer s.closeConn()

	for {
		select {
		case msg, ok := <-s.handle.Outbound():
			if !ok {
				return
			}
			if err := wire.Encode(s.conn, msg); err != nil {
				s.log.WithError(err).Debug("write failed")
				return
			}
		case <-s.handle.Evicted():
			s.log.Warn(errs.Server(errs.DuplicatedAuth, "session superseded by a newer login").Error())
			return
		case <-s.done:
			return
		}
	}
}

// dispatch routes one decoded frame per spec §4.6.
func (s *session) dispatch(msg wire.Message) {
	switch msg.Command {
	case wire.CommandOnlineList:
		s.reply(s.reg.OnlineListMessage())
	case wire.CommandSendMsg, wire.CommandGetPubKey, wire.CommandSendPubKey:
		s.forward(msg)
	case wire.CommandHelp:
		s.reply(wire.HelpMessage())
	case wire.CommandLogin:
		s.log.Warn(errs.Server(errs.UnexpectedFrame, "duplicate Login").Error())
	case wire.CommandRemoteError:
		s.log.WithField("content", string(msg.Content)).Warn("peer reported RemoteError")
	default:
		s.reply(wire.HelpMessage())
	}
}

// reply enqueues msg addressed to this session's own uid.
func (s *session) reply(msg wire.Message) {
	if !s.handle.Send(msg) {
		s.log.Warn("outbound queue full, dropping reply")
	}
}

// forward stamps the authenticated sender onto msg and routes it through
// the registry. ReceiverNotExist is logged and swallowed — it must never
// end the sender's session (spec §4.6, §7).
func (s *session) forward(msg wire.Message) {
	stamped := msg.WithSender(s.uid)
	if !s.reg.Send(stamped.Receiver, stamped) {
		s.log.WithField("receiver", stamped.Receiver).
			Warn(errs.Client(errs.ReceiverNotExist, stamped.Receiver).Error())
	}
}
