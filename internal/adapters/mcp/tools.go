// Package mcpadapter exposes the matching engine as MCP tools so assistants can
// score documents and check identifiers without running a verification session.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/matching"
)

type Tools struct {
	checker *matching.Checker
	fields  map[string]matching.FieldPattern
	logger  *slog.Logger
}

func NewTools(checker *matching.Checker, logger *slog.Logger) *Tools {
	if checker == nil {
		checker = matching.NewChecker(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	fields := make(map[string]matching.FieldPattern)
	for _, rule := range checker.Rules() {
		fields[rule.Field.Name] = rule.Field
	}
	return &Tools{checker: checker, fields: fields, logger: logger}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(tools *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("receiving-verifier", version)

	s.AddTool(mcp.NewTool("score_similarity",
		mcp.WithDescription(fmt.Sprintf(
			"Scores two texts with the Jaccard index of their word tokens. A score of %.2f or more counts as a match.",
			matching.MatchThreshold,
		)),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text extracted from the submitted document.")),
		mcp.WithString("reference", mcp.Required(), mcp.Description("Text of the reference document.")),
	), tools.HandleScoreSimilarity)

	s.AddTool(mcp.NewTool("check_field_consistency",
		mcp.WithDescription("Checks that identifiers such as invoice and airway bill numbers agree across the receiving documents."),
		mcp.WithString("invoice", mcp.Description("Text of the invoice.")),
		mcp.WithString("bill_of_entry", mcp.Description("Text of the bill of entry.")),
		mcp.WithString("airway_bill", mcp.Description("Text of the airway bill.")),
	), tools.HandleCheckFieldConsistency)

	s.AddTool(mcp.NewTool("extract_field",
		mcp.WithDescription("Finds a structured identifier in a text."),
		mcp.WithString("field", mcp.Required(), mcp.Description("Field name: "+strings.Join(tools.FieldNames(), ", ")+".")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to search.")),
	), tools.HandleExtractField)

	return s
}

func (t *Tools) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type similarityResult struct {
	Score     float64 `json:"score"`
	Matched   bool    `json:"matched"`
	Threshold float64 `json:"threshold"`
}

func (t *Tools) HandleScoreSimilarity(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reference, err := req.RequireString("reference")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	score := matching.Similarity(text, reference)
	return jsonResult(similarityResult{
		Score:     score,
		Matched:   matching.IsMatch(score),
		Threshold: matching.MatchThreshold,
	})
}

type consistencyResult struct {
	Consistent bool                   `json:"consistent"`
	Checked    []string               `json:"checked"`
	Mismatches []domain.FieldMismatch `json:"mismatches"`
}

func (t *Tools) HandleCheckFieldConsistency(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	texts := make(map[domain.DocumentType]string)
	for _, docType := range domain.DocumentTypes() {
		if text := strings.TrimSpace(req.GetString(string(docType), "")); text != "" {
			texts[docType] = text
		}
	}
	if len(texts) < 2 {
		return mcp.NewToolResultError("at least two document texts are required"), nil
	}

	mismatches := t.checker.Check(texts)
	if mismatches == nil {
		mismatches = []domain.FieldMismatch{}
	}
	var checked []string
	for _, rule := range t.checker.Rules() {
		if texts[rule.Source] != "" && texts[rule.Target] != "" {
			checked = append(checked, fmt.Sprintf("%s: %s vs %s", rule.Field.Name, rule.Source, rule.Target))
		}
	}
	t.logger.Debug("mcp_field_consistency_checked", "documents", len(texts), "mismatches", len(mismatches))
	return jsonResult(consistencyResult{
		Consistent: len(mismatches) == 0,
		Checked:    checked,
		Mismatches: mismatches,
	})
}

type extractResult struct {
	Field string `json:"field"`
	Found bool   `json:"found"`
	Value string `json:"value,omitempty"`
}

func (t *Tools) HandleExtractField(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pattern, ok := t.fields[strings.TrimSpace(name)]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown field %q; known fields: %s", name, strings.Join(t.FieldNames(), ", "))), nil
	}
	value, found := pattern.Extract(text)
	return jsonResult(extractResult{Field: pattern.Name, Found: found, Value: value})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
