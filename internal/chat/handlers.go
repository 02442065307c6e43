package chat

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/djwesty/rust-irc/internal/proto"
	"github.com/djwesty/rust-irc/internal/registry"
)

// handleFrame dispatches one frame from a registered session and writes the
// reply. It returns true when the session should close (QUIT).
//
// Fan-out discipline: membership is snapshotted under the registry lock,
// peer writes happen after release, and the sender's acknowledgement is
// written only after all fan-out writes for the command.
func handleFrame(reg *registry.Registry, nick string, w io.Writer, f proto.Frame, log *slog.Logger) (quit bool) {
	switch f.Op {
	case proto.OpRegisterNick:
		reply(w, proto.Err(proto.ErrAlreadyRegistered), log)

	case proto.OpListRooms:
		reply(w, proto.WithParam(proto.OpResponse, spaceJoined(reg.ListRooms())), log)

	case proto.OpListUsers:
		reply(w, proto.WithParam(proto.OpResponse, spaceJoined(reg.ListUsers())), log)

	case proto.OpListUsersInRoom:
		members, ok := reg.Members(f.Param())
		if !ok {
			reply(w, proto.Err(proto.ErrInvalidRoom), log)
			return false
		}
		reply(w, proto.WithParam(proto.OpResponse, spaceJoined(members)), log)

	case proto.OpJoinRoom:
		handleJoin(reg, nick, w, f.Param(), log)

	case proto.OpLeaveRoom:
		handleLeave(reg, nick, w, f.Param(), log)

	case proto.OpMessage:
		// Deliver to every room the sender is in; an empty room set is not
		// an error.
		text := f.Param()
		for _, room := range reg.RoomsOf(nick) {
			writers, ok := reg.RoomWriters(room)
			if !ok {
				continue // room vanished between snapshots
			}
			fanOut(reg, writers, room, nick, text, log)
		}
		reply(w, proto.Bare(proto.OpResponseOK), log)

	case proto.OpMessageRoom:
		handleMessageRoom(reg, nick, w, f.Payload, log)

	case proto.OpKeepAlive:
		reply(w, proto.Bare(proto.OpResponseOK), log)

	case proto.OpQuit:
		return true

	default:
		log.Warn("unknown opcode", "op", f.Op)
		reply(w, proto.Err(proto.ErrMalformed), log)
	}
	return false
}

func handleJoin(reg *registry.Registry, nick string, w io.Writer, room string, log *slog.Logger) {
	if room == "" {
		reply(w, proto.Err(proto.ErrMalformed), log)
		return
	}
	if err := reg.Join(nick, room); err != nil {
		reply(w, proto.Err(wireCode(err)), log)
		return
	}
	text := "Joined " + room + ". Current rooms: " + strings.Join(reg.RoomsOf(nick), ",")
	reply(w, proto.WithParam(proto.OpResponse, text), log)
}

func handleLeave(reg *registry.Registry, nick string, w io.Writer, room string, log *slog.Logger) {
	if room == "" {
		reply(w, proto.Err(proto.ErrMalformed), log)
		return
	}
	if err := reg.Leave(nick, room); err != nil {
		reply(w, proto.Err(wireCode(err)), log)
		return
	}
	text := "Left " + room + ". Current rooms: " + strings.Join(reg.RoomsOf(nick), ",")
	reply(w, proto.WithParam(proto.OpResponse, text), log)
}

func handleMessageRoom(reg *registry.Registry, nick string, w io.Writer, payload []byte, log *slog.Logger) {
	room, text, ok := proto.SplitOnce(payload)
	if !ok {
		reply(w, proto.Err(proto.ErrMalformed), log)
		return
	}
	writers, ok := reg.RoomWriters(room)
	if !ok {
		reply(w, proto.Err(proto.ErrEmptyRoom), log)
		return
	}
	member := false
	for _, uc := range writers {
		if uc.Nick == nick {
			member = true
			break
		}
	}
	if !member {
		reply(w, proto.Err(proto.ErrNotInRoom), log)
		return
	}
	fanOut(reg, writers, room, nick, text, log)
	reply(w, proto.Bare(proto.OpResponseOK), log)
}

// fanOut delivers "room sender text" to every member except the sender, in
// join order. A failed peer write is logged and skipped; that peer's own
// session cleans up when it next touches its connection.
func fanOut(reg *registry.Registry, writers []registry.UserConn, room, sender, text string, log *slog.Logger) {
	buf := proto.WithParams3(proto.OpMessageRoom, room, sender, text)
	for _, uc := range writers {
		if uc.Nick == sender {
			continue
		}
		if _, err := uc.W.Write(buf); err != nil {
			log.Warn("fan-out write failed", "room", room, "peer", uc.Nick, "err", err)
			continue
		}
		reg.RecordDelivery(len(buf))
	}
}

// Broadcast writes a server-originated MESSAGE notice to every registered
// user and returns the number of successful writes. Its callers (the admin
// console, the HTTP API, signal shutdown) have no per-session logger, so
// write failures go to the process default.
func Broadcast(reg *registry.Registry, text string) int {
	buf := proto.WithParam(proto.OpMessage, text)
	sent := 0
	for _, uc := range reg.WritersSnapshot() {
		if _, err := uc.W.Write(buf); err != nil {
			slog.Warn("broadcast write failed", "peer", uc.Nick, "err", err)
			continue
		}
		reg.RecordDelivery(len(buf))
		sent++
	}
	return sent
}

// DisconnectAll writes QUIT to every registered user. The owning sessions
// close the connections themselves once the listener shuts down. Like
// Broadcast it runs outside any session and logs through the default.
func DisconnectAll(reg *registry.Registry) {
	buf := proto.Bare(proto.OpQuit)
	for _, uc := range reg.WritersSnapshot() {
		if _, err := uc.W.Write(buf); err != nil {
			slog.Warn("quit write failed", "peer", uc.Nick, "err", err)
		}
	}
}

// spaceJoined renders a list reply: every name followed by one space.
func spaceJoined(names []string) string {
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte(' ')
	}
	return b.String()
}

// wireCode maps a registry outcome to its wire error code.
func wireCode(err error) proto.ErrCode {
	switch {
	case errors.Is(err, registry.ErrNicknameCollision):
		return proto.ErrNicknameCollision
	case errors.Is(err, registry.ErrServerFull):
		return proto.ErrServerFull
	case errors.Is(err, registry.ErrAlreadyInRoom):
		return proto.ErrAlreadyInRoom
	case errors.Is(err, registry.ErrNotInRoom):
		return proto.ErrNotInRoom
	case errors.Is(err, registry.ErrInvalidRoom):
		return proto.ErrInvalidRoom
	}
	return proto.ErrMalformed
}

// reply writes one frame to the sender. A failed write is only logged; the
// sender's read loop will observe the broken connection on its next read.
func reply(w io.Writer, buf []byte, log *slog.Logger) {
	if _, err := w.Write(buf); err != nil {
		log.Warn("reply write failed", "err", err)
	}
}
