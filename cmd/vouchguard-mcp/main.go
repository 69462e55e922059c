package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vouchguard/vouchguard/internal/mcp"
)

// This MCP server exposes VouchGuard operations to an agent over stdio.
// Every tool call is relayed to the running vouchguard process through
// its dashboard HTTP API.

const defaultAPIURL = "http://127.0.0.1:8090"

func main() {
	apiURL := os.Getenv("VOUCHGUARD_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	srv := mcp.NewServer(mcp.NewClient(apiURL))
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}
