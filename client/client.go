// Package client is a small interactive terminal client for the wire
// protocol, mainly for poking at a running server.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type request struct {
	RequestType string `json:"requestType"`
	CellName    string `json:"cellName,omitempty"`
	Contents    string `json:"contents,omitempty"`
}

// Run connects to addr, performs the handshake interactively, then bridges
// stdin commands to requests and server messages to stdout.
func Run(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	stdin := bufio.NewReader(os.Stdin)
	server := bufio.NewReader(conn)

	// Handshake: username, sheet list, sheet choice, snapshot, id line.
	if interactive {
		fmt.Print("username: ")
	}
	username, err := stdin.ReadString('\n')
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(username)); err != nil {
		return err
	}

	fmt.Println("sheets on server:")
	for {
		line, err := server.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read sheet list: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		fmt.Printf("  %s\n", line)
	}

	if interactive {
		fmt.Print("sheet: ")
	}
	sheetName, err := stdin.ReadString('\n')
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(sheetName)); err != nil {
		return err
	}

	// The snapshot is a run of JSON lines; the first bare decimal line is
	// this client's id and ends the handshake.
	var id int
	for {
		line, err := server.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if n, err := strconv.Atoi(line); err == nil {
			id = n
			break
		}
		printMessage(line)
	}
	fmt.Printf("connected, your id is %d\n", id)
	if interactive {
		fmt.Println("commands: select <cell> | edit <cell> <contents> | undo | revert <cell> | raw JSON")
	}

	done := make(chan error, 2)

	go func() {
		for {
			line, err := server.ReadString('\n')
			if err != nil {
				done <- fmt.Errorf("server closed the connection: %w", err)
				return
			}
			printMessage(strings.TrimRight(line, "\r\n"))
		}
	}()

	go func() {
		for {
			line, err := stdin.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					done <- nil
				} else {
					done <- err
				}
				return
			}
			out, err := buildRequest(strings.TrimSpace(line))
			if err != nil {
				fmt.Printf("? %v\n", err)
				continue
			}
			if out == "" {
				continue
			}
			if _, err := conn.Write([]byte(out + "\n")); err != nil {
				done <- err
				return
			}
		}
	}()

	return <-done
}

// buildRequest turns one command line into a request JSON line. Lines that
// already look like JSON pass through untouched.
func buildRequest(line string) (string, error) {
	if line == "" {
		return "", nil
	}
	if strings.HasPrefix(line, "{") {
		return line, nil
	}

	fields := strings.Fields(line)
	var req request
	switch fields[0] {
	case "select":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: select <cell>")
		}
		req = request{RequestType: "selectCell", CellName: fields[1]}
	case "edit":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			return "", fmt.Errorf("usage: edit <cell> <contents>")
		}
		req = request{RequestType: "editCell", CellName: parts[1], Contents: parts[2]}
	case "undo":
		req = request{RequestType: "undo"}
	case "revert":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: revert <cell>")
		}
		req = request{RequestType: "revertCell", CellName: fields[1]}
	default:
		return "", fmt.Errorf("unknown command %q", fields[0])
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// printMessage renders one server message compactly.
func printMessage(line string) {
	var msg map[string]interface{}
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		fmt.Println(line)
		return
	}
	switch msg["messageType"] {
	case "cellUpdated":
		fmt.Printf("< %v = %q\n", msg["cellName"], msg["contents"])
	case "cellSelected":
		fmt.Printf("< %v selected by %v (id %v)\n", msg["cellName"], msg["selectorName"], msg["selector"])
	case "requestError":
		fmt.Printf("< error on %v: %v\n", msg["cellName"], msg["message"])
	case "disconnected":
		fmt.Printf("< client %v disconnected\n", msg["user"])
	case "serverError":
		fmt.Printf("< server: %v\n", msg["message"])
	default:
		fmt.Println(line)
	}
}
