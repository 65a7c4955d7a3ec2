package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"localchat.dev/node/logging"
	"localchat.dev/node/node"
	"localchat.dev/node/wire"
)

func printUsage() {
	fmt.Printf("usage:\n")
	fmt.Printf("%s [--dev]\n", os.Args[0])
	fmt.Printf("reads newline-delimited JSON commands on stdin, writes newline-delimited JSON events on stdout\n")
}

// command is one line of the stdin protocol. Args vary by Cmd; unused
// fields are simply ignored, mirroring the uapi key=value parser's
// tolerance for fields a given command doesn't need.
type command struct {
	Cmd       string      `json:"cmd"`
	Room      string      `json:"room,omitempty"`
	Name      string      `json:"name,omitempty"`
	Structure []wire.Part `json:"structure,omitempty"`
}

// outMessage is one line of the stdout protocol: either a response to a
// command (Kind "joined", "sent", "peers", "left", "error") or a forwarded
// asynchronous Event (Kind "event").
type outMessage struct {
	Kind string `json:"kind"`
	Data any    `json:"data,omitempty"`
}

func writeOut(enc *json.Encoder, kind string, data any) {
	if err := enc.Encode(outMessage{Kind: kind, Data: data}); err != nil {
		fmt.Fprintln(os.Stderr, "main: stdout encode error:", err)
	}
}

func main() {
	dev := false
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--dev":
			dev = true
		case "-h", "--help":
			printUsage()
			return
		default:
			printUsage()
			os.Exit(1)
		}
	}

	level := logging.LevelFromString(os.Getenv("LOCALCHAT_LOG_LEVEL"))
	n := node.New(level, dev, "(localchat-node) ")

	out := json.NewEncoder(os.Stdout)

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-term
		n.LeaveRoom()
		os.Exit(0)
	}()

	go func() {
		for ev := range n.Events() {
			writeOut(out, "event", ev)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var cmd command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			writeOut(out, "error", err.Error())
			continue
		}
		handleCommand(n, out, cmd)
	}

	n.LeaveRoom()
}

func handleCommand(n *node.Node, out *json.Encoder, cmd command) {
	switch cmd.Cmd {
	case "join":
		port, err := n.JoinRoom(cmd.Room, cmd.Name)
		if err != nil {
			writeOut(out, "error", err.Error())
			return
		}
		writeOut(out, "joined", map[string]int{"port": port})

	case "send":
		msg, err := n.SendMessage(cmd.Structure, nil)
		if err != nil {
			writeOut(out, "error", err.Error())
			return
		}
		writeOut(out, "sent", msg)

	case "peers":
		writeOut(out, "peers", n.GetPeers())

	case "leave":
		if err := n.LeaveRoom(); err != nil {
			writeOut(out, "error", err.Error())
			return
		}
		writeOut(out, "left", nil)

	default:
		writeOut(out, "error", fmt.Sprintf("unknown command: %q", cmd.Cmd))
	}
}
