package main

import (
	"fmt"
	"log/slog"
	"os"
)

const defaultConfigPath = "kvview.yaml"

func usage() {
	fmt.Fprintf(os.Stderr, `usage: kvview <command> [flags]

commands:
  serve    run the proxy server and print its port
  browse   start a server and browse its database

Run "kvview <command> -h" for the flags of a command.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "browse":
		err = runBrowse(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("kvview failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}
