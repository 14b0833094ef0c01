package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tollgate/tollgate/internal/chat"
)

const version = "0.3.0"

func main() {
	fs := flag.NewFlagSet("tollgate-chat", flag.ExitOnError)
	serverCmd := fs.String("server-cmd", "tollgate-mcp", "command to launch the MCP server over stdio")
	endpoint := fs.String("endpoint", "", "streamable HTTP endpoint of a running MCP server (overrides -server-cmd)")
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := connect(ctx, *serverCmd, *endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = session.Close() }()

	router := chat.NewRouter(&chat.SessionCaller{Session: session})

	fmt.Println("Connected. Ask a question, or try \"calculate toll for truck over 20 miles\". Ctrl-D exits.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		answer, err := router.Handle(ctx, message)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(answer)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, serverCmd, endpoint string) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "tollgate-chat", Version: version}, nil)

	if endpoint != "" {
		return client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: endpoint}, nil)
	}

	parts := strings.Fields(serverCmd)
	if len(parts) == 0 {
		return nil, fmt.Errorf("server command is required")
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr
	return client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
}
