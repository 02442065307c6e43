package chat

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/djwesty/rust-irc/internal/proto"
	"github.com/djwesty/rust-irc/internal/registry"
)

// startSession runs a session over an in-memory pipe and returns the
// client end plus a channel closed when the session exits.
func startSession(reg *registry.Registry) (client net.Conn, done chan struct{}) {
	client, server := net.Pipe()
	done = make(chan struct{})
	go func() {
		defer close(done)
		newSession(server, reg).run()
	}()
	return client, done
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, proto.MaxFrameSize)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf[:n]
}

func writeFrame(t *testing.T, conn net.Conn, frame []byte) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitClosed(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
}

func TestSessionRegisterThenQuit(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "alice"))
	if got := readFrame(t, client); !bytes.Equal(got, []byte{proto.OpResponseOK}) {
		t.Fatalf("register reply: got %v, want RESPONSE_OK", got)
	}
	if users := reg.ListUsers(); len(users) != 1 || users[0] != "alice" {
		t.Fatalf("users: got %v, want [alice]", users)
	}

	writeFrame(t, client, proto.Bare(proto.OpQuit))
	waitClosed(t, done)

	if users := reg.ListUsers(); len(users) != 0 {
		t.Errorf("users after quit: got %v, want none", users)
	}
}

func TestSessionQuitRemovesSoleRoomMember(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "alice"))
	readFrame(t, client)
	writeFrame(t, client, proto.WithParam(proto.OpJoinRoom, "chan1"))
	readFrame(t, client)

	writeFrame(t, client, proto.Bare(proto.OpQuit))
	waitClosed(t, done)

	if rooms := reg.ListRooms(); len(rooms) != 0 {
		t.Errorf("rooms after quit: got %v, want none", rooms)
	}
}

func TestSessionEmptyNicknameRegistersAndUnregisters(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)

	// An empty nickname is opaque bytes like any other.
	writeFrame(t, client, proto.Bare(proto.OpRegisterNick))
	if got := readFrame(t, client); !bytes.Equal(got, []byte{proto.OpResponseOK}) {
		t.Fatalf("register reply: got %v, want RESPONSE_OK", got)
	}
	if users := reg.ListUsers(); len(users) != 1 || users[0] != "" {
		t.Fatalf("users: got %q, want one empty name", users)
	}

	writeFrame(t, client, proto.WithParam(proto.OpJoinRoom, "chan1"))
	readFrame(t, client)

	// Abrupt disconnect, no QUIT.
	client.Close()
	waitClosed(t, done)

	if users := reg.ListUsers(); len(users) != 0 {
		t.Errorf("users after close: got %q, want none", users)
	}
	if rooms := reg.ListRooms(); len(rooms) != 0 {
		t.Errorf("rooms after close: got %v, want none", rooms)
	}
}

func TestSessionSpaceNicknameAcceptedAsOpaque(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "a b"))
	if got := readFrame(t, client); !bytes.Equal(got, []byte{proto.OpResponseOK}) {
		t.Fatalf("register reply: got %v, want RESPONSE_OK", got)
	}
	if users := reg.ListUsers(); len(users) != 1 || users[0] != "a b" {
		t.Fatalf("users: got %q, want [%q]", users, "a b")
	}

	writeFrame(t, client, proto.Bare(proto.OpQuit))
	waitClosed(t, done)

	if users := reg.ListUsers(); len(users) != 0 {
		t.Errorf("users after quit: got %q, want none", users)
	}
}

func TestSessionNicknameCollisionCloses(t *testing.T) {
	reg := registry.New(0)
	if err := reg.Register("alice", &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "alice"))
	want := []byte{proto.OpError, byte(proto.ErrNicknameCollision)}
	if got := readFrame(t, client); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	waitClosed(t, done)

	// The original registration survives.
	if users := reg.ListUsers(); len(users) != 1 {
		t.Errorf("users: got %v, want [alice]", users)
	}
}

func TestSessionServerFullCloses(t *testing.T) {
	reg := registry.New(1)
	if err := reg.Register("alice", &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "bob"))
	want := []byte{proto.OpError, byte(proto.ErrServerFull)}
	if got := readFrame(t, client); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	waitClosed(t, done)
}

func TestSessionCommandBeforeRegistration(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.Bare(proto.OpListRooms))
	want := []byte{proto.OpError, byte(proto.ErrNotYetRegistered)}
	if got := readFrame(t, client); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	waitClosed(t, done)
}

func TestSessionEOFBeforeRegistration(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)

	client.Close()
	waitClosed(t, done)

	if users := reg.ListUsers(); len(users) != 0 {
		t.Errorf("users: got %v, want none", users)
	}
}

func TestSessionDisconnectUnregisters(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "alice"))
	readFrame(t, client)
	writeFrame(t, client, proto.WithParam(proto.OpJoinRoom, "chan1"))
	readFrame(t, client)

	// Abrupt disconnect, no QUIT.
	client.Close()
	waitClosed(t, done)

	if users := reg.ListUsers(); len(users) != 0 {
		t.Errorf("users: got %v, want none", users)
	}
	if rooms := reg.ListRooms(); len(rooms) != 0 {
		t.Errorf("rooms: got %v, want none", rooms)
	}
}

func TestSessionMalformedFrameKeepsSessionAlive(t *testing.T) {
	reg := registry.New(0)
	client, done := startSession(reg)
	defer client.Close()

	writeFrame(t, client, proto.WithParam(proto.OpRegisterNick, "alice"))
	readFrame(t, client)

	writeFrame(t, client, proto.WithParam(proto.OpMessageRoom, "nospace"))
	want := []byte{proto.OpError, byte(proto.ErrMalformed)}
	if got := readFrame(t, client); !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// Still registered and responsive.
	writeFrame(t, client, proto.Bare(proto.OpKeepAlive))
	if got := readFrame(t, client); !bytes.Equal(got, []byte{proto.OpResponseOK}) {
		t.Fatalf("keepalive after error: got %v", got)
	}

	writeFrame(t, client, proto.Bare(proto.OpQuit))
	waitClosed(t, done)
}

func TestSessionReadFrameEOF(t *testing.T) {
	reg := registry.New(0)
	client, server := net.Pipe()
	s := newSession(server, reg)

	go client.Close()

	buf := make([]byte, proto.MaxFrameSize)
	_, err := s.readFrame(buf)
	if err != io.EOF && err != io.ErrClosedPipe {
		t.Errorf("got %v, want EOF", err)
	}
	server.Close()
}
