// Package main implements a minimal command-line client for the arflow
// ingestion core's JSON-RPC 2.0/WebSocket surface: session lifecycle
// operations a human operator might run against a running server (list,
// get, delete). Frame ingestion itself is left to SDKs
// and test harnesses, not this CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

const (
	appName    = "arflow-cli"
	appVersion = "1.0.0"
)

var (
	serverURL = flag.String("server", "ws://127.0.0.1:8500/ws", "URL of the arflow JSON-RPC/WebSocket endpoint")
	format    = flag.String("format", "table", "Output format (table, json)")
	timeout   = flag.Duration("timeout", 10*time.Second, "RPC call timeout")
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	ID      int         `json:"id"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	commandArgs := args[1:]

	if command == "help" {
		printUsage()
		return
	}
	if command == "version" {
		fmt.Printf("%s version %s\n", appName, appVersion)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *serverURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to %s: %v\n", *serverURL, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := runCommand(conn, command, commandArgs); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

func runCommand(conn *websocket.Conn, command string, args []string) error {
	switch command {
	case "list-sessions":
		return call(conn, "list_sessions", nil)
	case "get-session":
		fs := flag.NewFlagSet("get-session", flag.ExitOnError)
		sessionID := fs.String("session-id", "", "session id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *sessionID == "" {
			return fmt.Errorf("session-id is required")
		}
		return call(conn, "get_session", map[string]string{"session_id": *sessionID})
	case "delete-session":
		fs := flag.NewFlagSet("delete-session", flag.ExitOnError)
		sessionID := fs.String("session-id", "", "session id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *sessionID == "" {
			return fmt.Errorf("session-id is required")
		}
		return call(conn, "delete_session", map[string]string{"session_id": *sessionID})
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func call(conn *websocket.Conn, method string, params interface{}) error {
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: 1, Params: params}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var resp rpcResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	if *format == "json" {
		fmt.Println(string(resp.Result))
		return nil
	}
	var pretty interface{}
	if err := json.Unmarshal(resp.Result, &pretty); err != nil {
		fmt.Println(string(resp.Result))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func printUsage() {
	fmt.Printf(`%s - arflow ingestion core command-line client

Usage:
  %s [flags] <command> [command-flags]

Commands:
  list-sessions              List all active sessions
  get-session                Get a session by id (-session-id)
  delete-session             Delete a session by id (-session-id)
  version                    Show version information
  help                       Show this help message

Flags:
  -server string    URL of the JSON-RPC/WebSocket endpoint (default: ws://127.0.0.1:8500/ws)
  -format string    Output format: table or json (default: table)
  -timeout duration RPC call timeout (default: 10s)

Examples:
  %s -server ws://localhost:8500/ws list-sessions
  %s get-session -session-id 3fa9c1
`, appName, appName, appName, appName)
}
