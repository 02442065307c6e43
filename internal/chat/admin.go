package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/peterh/liner"

	"github.com/djwesty/rust-irc/internal/registry"
)

const adminHelp = `Commands:
  users              list registered nicknames
  rooms              list rooms
  broadcast <text>   send a server notice to all users
  help               show this help
  quit               disconnect all users and stop the server`

// RunConsole drives the interactive admin prompt on the calling goroutine.
// It returns after quit or EOF, having written QUIT to every user and
// invoked shutdown. The console only inspects state and broadcasts; it
// never mutates membership.
func RunConsole(reg *registry.Registry, shutdown context.CancelFunc) {
	defer shutdown()

	input := liner.NewLiner()
	defer input.Close()
	input.SetCtrlCAborts(true)

	for {
		line, err := input.Prompt("admin> ")
		if err == liner.ErrPromptAborted {
			continue
		} else if err != nil {
			// EOF on stdin quits like the quit command.
			fmt.Println()
			DisconnectAll(reg)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "users":
			fmt.Printf("Users: %s\n", strings.Join(reg.ListUsers(), ", "))
		case "rooms":
			rooms := reg.ListRooms()
			if len(rooms) == 0 {
				fmt.Println("  (no rooms)")
			}
			for _, room := range rooms {
				members, _ := reg.Members(room)
				fmt.Printf("  %s: %s\n", room, strings.Join(members, ", "))
			}
		case "broadcast":
			if strings.TrimSpace(rest) == "" {
				fmt.Println("usage: broadcast <text>")
				continue
			}
			n := Broadcast(reg, rest)
			fmt.Printf("Sent to %d users\n", n)
		case "help":
			fmt.Println(adminHelp)
		case "quit":
			fmt.Println("Stopping server")
			DisconnectAll(reg)
			return
		default:
			fmt.Println("Unknown command; try help")
		}
	}
}
