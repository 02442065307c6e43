// Package client implements the interactive terminal client: a prompt loop
// that encodes commands into wire frames, a reader goroutine that renders
// server frames, and the keepalive watchdog.
package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/djwesty/rust-irc/internal/proto"
)

const helpText = `Commands:
  /rooms             list rooms
  /users             list users
  /list <room>       list users in a room
  /join <room>       join a room
  /leave <room>      leave a room
  /msg <room> <text> message one room
  /help              show this help
  /quit              disconnect and exit
Anything else is sent to every room you are in.`

// ValidName reports whether s works as a nickname or room name on the wire:
// non-empty, no spaces (the protocol's parameter separator), and within the
// name length cap.
func ValidName(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("name must not be empty")
	case strings.ContainsRune(s, ' '):
		return fmt.Errorf("name must not contain spaces")
	case len(s) > proto.MaxNameLength:
		return fmt.Errorf("name must not exceed %d bytes", proto.MaxNameLength)
	}
	return nil
}

// encodeInput translates one prompt line into a wire frame. A non-empty
// usage string means nothing should be sent; quit reports /quit.
func encodeInput(line string) (frame []byte, usage string, quit bool) {
	if !strings.HasPrefix(line, "/") {
		return proto.WithParam(proto.OpMessage, line), "", false
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/rooms":
		return proto.Bare(proto.OpListRooms), "", false
	case "/users":
		return proto.Bare(proto.OpListUsers), "", false
	case "/list":
		if err := ValidName(rest); err != nil {
			return nil, "usage: /list <room>", false
		}
		return proto.WithParam(proto.OpListUsersInRoom, rest), "", false
	case "/join":
		if err := ValidName(rest); err != nil {
			return nil, "usage: /join <room>", false
		}
		return proto.WithParam(proto.OpJoinRoom, rest), "", false
	case "/leave":
		if err := ValidName(rest); err != nil {
			return nil, "usage: /leave <room>", false
		}
		return proto.WithParam(proto.OpLeaveRoom, rest), "", false
	case "/msg":
		room, text, ok := strings.Cut(rest, " ")
		if !ok || ValidName(room) != nil || text == "" {
			return nil, "usage: /msg <room> <text>", false
		}
		return proto.WithParams2(proto.OpMessageRoom, room, text), "", false
	case "/help":
		return nil, helpText, false
	case "/quit":
		return nil, "", true
	}
	return nil, "unknown command; try /help", false
}

// renderFrame formats one server frame for the terminal. ok is false when
// nothing should be printed. Invalid UTF-8 is replaced lossily for display
// only; the wire bytes are never rewritten.
func renderFrame(f proto.Frame) (text string, ok bool) {
	switch f.Op {
	case proto.OpResponse:
		return display(f.Param()), true
	case proto.OpResponseOK:
		// Quiet ack; keepalives answer with these constantly.
		return "", false
	case proto.OpError:
		return "error: " + f.ErrorCode().String(), true
	case proto.OpMessage:
		return "[server]: " + display(f.Param()), true
	case proto.OpMessageRoom:
		room, rest, ok1 := proto.SplitOnce(f.Payload)
		sender, body, ok2 := proto.SplitOnce([]byte(rest))
		if !ok1 || !ok2 {
			return display(f.Param()), true
		}
		return fmt.Sprintf("[%s] %s: %s", display(room), display(sender), display(body)), true
	case proto.OpQuit:
		return "server is shutting down", true
	}
	return fmt.Sprintf("unexpected frame %#x from server", f.Op), true
}

func display(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// Run connects to the server, registers nick, and drives the prompt loop
// until /quit, server shutdown, or an unresponsive server. It returns the
// process exit code: 0 for a clean shutdown, 1 for a registration failure,
// connection failure, or dead server.
func Run(host string, port int, nick string) int {
	input := liner.NewLiner()
	defer input.Close()
	input.SetCtrlCAborts(true)

	if nick == "" {
		line, err := input.Prompt("Enter your nickname: ")
		if err != nil {
			return 1
		}
		nick = strings.TrimSpace(line)
	}
	if err := ValidName(nick); err != nil {
		fmt.Fprintf(os.Stderr, "invalid nickname: %v\n", err)
		return 1
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", addr, err)
		return 1
	}
	defer conn.Close()

	// Registration is synchronous: the first server frame decides whether
	// this client gets to exist.
	if _, err := conn.Write(proto.WithParam(proto.OpRegisterNick, nick)); err != nil {
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		return 1
	}
	buf := make([]byte, proto.MaxFrameSize)
	n, err := conn.Read(buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "register: %v\n", err)
		return 1
	}
	f, ok := proto.Decode(buf[:n])
	if !ok || f.Op != proto.OpResponseOK {
		if ok && f.Op == proto.OpError {
			fmt.Fprintf(os.Stderr, "registration failed: %s\n", f.ErrorCode())
		} else {
			fmt.Fprintln(os.Stderr, "registration failed: unexpected server reply")
		}
		return 1
	}
	fmt.Printf("Connected to %s as %s\n", addr, nick)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// fatal ends the process from the reader or watchdog. The terminal is
	// restored first so the shell is not left in raw mode.
	fatal := func(code int, msg string) {
		fmt.Println(msg)
		input.Close()
		os.Exit(code)
	}

	wd := NewWatchdog()
	go readLoop(conn, wd, fatal)
	go wd.Run(ctx,
		func() { conn.Write(proto.Bare(proto.OpKeepAlive)) },
		func() { fatal(1, "server unresponsive, giving up") })

	for {
		line, err := input.Prompt("> ")
		if err == liner.ErrPromptAborted {
			continue
		} else if err != nil {
			// EOF on stdin: leave cleanly, same as /quit.
			conn.Write(proto.Bare(proto.OpQuit))
			return 0
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		frame, usage, quit := encodeInput(line)
		if quit {
			conn.Write(proto.Bare(proto.OpQuit))
			return 0
		}
		if usage != "" {
			fmt.Println(usage)
			continue
		}
		if frame == nil {
			continue
		}
		if _, err := conn.Write(frame); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			return 1
		}
	}
}

// readLoop renders inbound frames until the connection drops. Every read
// feeds the watchdog.
func readLoop(conn net.Conn, wd *Watchdog, fatal func(int, string)) {
	buf := make([]byte, proto.MaxFrameSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			fatal(0, "disconnected from server")
			return
		}
		wd.Touch()
		f, ok := proto.Decode(buf[:n])
		if !ok {
			continue
		}
		if text, show := renderFrame(f); show {
			fmt.Printf("\r%s\n", text)
		}
		if f.Op == proto.OpQuit {
			fatal(0, "goodbye")
			return
		}
	}
}
