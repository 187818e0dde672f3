package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/receiving-verifier/internal/adapters/mcp"
	"github.com/kirillkom/receiving-verifier/internal/config"
	"github.com/kirillkom/receiving-verifier/internal/core/matching"
	"github.com/kirillkom/receiving-verifier/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol.
	logger := logging.NewJSONLoggerTo(os.Stderr, "receiving-mcp", cfg.LogLevel)

	rules, err := config.LoadFieldRules(cfg.FieldRulesPath)
	if err != nil {
		logger.Error("load_field_rules_failed", "error", err)
		os.Exit(1)
	}

	tools := mcpadapter.NewTools(matching.NewChecker(rules), logger)
	logger.Info("mcp_server_starting", "fields", tools.FieldNames())
	if err := server.ServeStdio(mcpadapter.NewServer(tools, version)); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
