package main

import (
	"fmt"
	"os"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: rust-irc <command> [flags]

Commands:
  server    run the chat server
  client    run the interactive client
  version   print the version
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		os.Exit(runServer(os.Args[2:]))
	case "client":
		os.Exit(runClient(os.Args[2:]))
	case "version":
		fmt.Printf("rust-irc %s\n", Version)
	default:
		usage()
		os.Exit(1)
	}
}
