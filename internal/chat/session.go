package chat

import (
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/djwesty/rust-irc/internal/proto"
	"github.com/djwesty/rust-irc/internal/registry"
)

// Session is the per-connection state machine. A session starts unregistered,
// becomes active after a successful REGISTER_NICK, and is closed on QUIT,
// EOF, or a transport error. The registry holds the connection's write side
// for fan-out; the session owns the read side.
type Session struct {
	id         string
	conn       net.Conn
	reg        *registry.Registry
	log        *slog.Logger
	nick       string
	registered bool
}

func newSession(conn net.Conn, reg *registry.Registry) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		conn: conn,
		reg:  reg,
		log:  slog.With("session", id, "remote", conn.RemoteAddr().String()),
	}
}

// run drives the session until it closes. It always unregisters the
// nickname (idempotently) and closes the connection on the way out.
func (s *Session) run() {
	defer s.close()

	s.log.Info("connected")
	buf := make([]byte, proto.MaxFrameSize)

	// Registration gate: the first frame must be REGISTER_NICK. Anything
	// else is answered with NOT_YET_REGISTERED and the connection dropped.
	f, err := s.readFrame(buf)
	if err != nil {
		return
	}
	if f.Op != proto.OpRegisterNick {
		s.log.Warn("command before registration", "op", f.Op)
		reply(s.conn, proto.Err(proto.ErrNotYetRegistered), s.log)
		return
	}
	// The nickname is opaque bytes; the client is responsible for keeping
	// spaces out of it.
	nick := f.Param()
	if err := s.reg.Register(nick, s.conn); err != nil {
		s.log.Warn("registration rejected", "nick", nick, "err", err)
		reply(s.conn, proto.Err(wireCode(err)), s.log)
		return
	}
	s.nick = nick
	s.registered = true
	s.log = s.log.With("nick", nick)
	s.log.Info("registered")
	reply(s.conn, proto.Bare(proto.OpResponseOK), s.log)

	for {
		f, err := s.readFrame(buf)
		if err != nil {
			if err != io.EOF {
				s.log.Warn("read failed", "err", err)
			}
			return
		}
		if quit := handleFrame(s.reg, s.nick, s.conn, f, s.log); quit {
			return
		}
	}
}

// readFrame performs one read and decodes it as one frame. One read is one
// frame: the protocol has no length prefix, so frames are never reassembled
// across reads.
func (s *Session) readFrame(buf []byte) (proto.Frame, error) {
	n, err := s.conn.Read(buf)
	if err != nil {
		return proto.Frame{}, err
	}
	f, ok := proto.Decode(buf[:n])
	if !ok {
		return proto.Frame{}, io.EOF
	}
	return f, nil
}

func (s *Session) close() {
	// Nicknames are opaque bytes and "" is a valid one, so registration is
	// tracked explicitly rather than inferred from the nickname.
	if s.registered {
		s.reg.Unregister(s.nick)
	}
	s.conn.Close()
	s.log.Info("session closed")
}
