package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/imas/mcp-server/internal/config"
	"github.com/imas/mcp-server/internal/metrics"
	"github.com/imas/mcp-server/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	version     = "0.1.0"
	serverName  = "imas-mcp-server"
	description = "MCP server for searching the IMAS Data Dictionary"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	// Set up logging to stderr (MCP uses stdout for protocol)
	log.SetOutput(os.Stderr)
	log.Printf("%s v%s starting...", serverName, version)

	cfg, err := config.Load(serverName, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Warning: Metrics server stopped: %v", err)
			}
		}()
	}

	server := createMCPServer()

	service, err := tools.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to create IMAS service: %v", err)
	}
	defer func() {
		if err := service.Close(); err != nil {
			log.Printf("Error closing IMAS search: %v", err)
		}
	}()

	toolCount := service.Register(ctx, server)
	log.Printf("✓ All tools registered: %d tools", toolCount)
	log.Printf("✓ Server ready and waiting for connections")

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Printf("Server error: %v", err)
	}
}

// createMCPServer initializes the MCP server
func createMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil, // Default options
	)

	log.Printf("Server initialized: %s v%s (%s)", serverName, version, description)
	return server
}
