package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
)

const (
	toolQuery    = "regulatory_query"
	toolRetrieve = "retrieve_documents"
	toolStatus   = "index_status"
)

// Tools exposes the assistant's inbound operations as MCP tools.
type Tools struct {
	retriever ports.DocumentRetriever
	queries   ports.QueryService
	status    ports.StatusReader
	logger    *slog.Logger
}

func NewTools(retriever ports.DocumentRetriever, queries ports.QueryService, status ports.StatusReader, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{
		retriever: retriever,
		queries:   queries,
		status:    status,
		logger:    logger,
	}
}

func (t *Tools) NewServer(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolQuery,
		mcp.WithDescription("Ask a question about a drug. Fetches regulatory documents when needed and answers from them, comparing agencies when several are selected."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question in natural language")),
		mcp.WithString("session_id", mcp.Description("Conversation key; follow-up questions reuse its context")),
		mcp.WithArray("sources", mcp.Description("Agencies to consult, e.g. FDA, EMA"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("model", mcp.Description("Override the generation model")),
		mcp.WithNumber("k", mcp.Description("Fragments to retrieve for a single-agency answer")),
	), t.handleQuery)

	s.AddTool(mcp.NewTool(toolRetrieve,
		mcp.WithDescription("Download and index regulatory documents for a drug from the selected agencies."),
		mcp.WithString("subject", mcp.Required(), mcp.Description("Drug or product name")),
		mcp.WithArray("sources", mcp.Description("Agencies to search"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithNumber("max_docs_per_source", mcp.Description("Cap on documents fetched from each agency")),
	), t.handleRetrieve)

	s.AddTool(mcp.NewTool(toolStatus,
		mcp.WithDescription("Report index size, configured agencies and models."),
	), t.handleStatus)

	return s
}

func (t *Tools) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	k := req.GetInt("k", 0)
	if k < 0 || k > domain.MaxQueryK {
		return mcp.NewToolResultError(fmt.Sprintf("k must be between 1 and %d", domain.MaxQueryK)), nil
	}

	resp, err := t.queries.ProcessQuery(ctx, domain.QueryRequest{
		SessionID: req.GetString("session_id", ""),
		Query:     query,
		Sources:   req.GetStringSlice("sources", nil),
		Model:     req.GetString("model", ""),
		K:         k,
	})
	if err != nil {
		t.logger.Error("mcp_tool_failed", "tool", toolQuery, "error", err)
		return mcp.NewToolResultErrorFromErr("query failed", err), nil
	}
	return jsonResult(resp)
}

func (t *Tools) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject, err := req.RequireString("subject")
	if err != nil || strings.TrimSpace(subject) == "" {
		return mcp.NewToolResultError("subject is required"), nil
	}

	outcome, err := t.retriever.RetrieveAndIndex(ctx, domain.RetrievalRequest{
		Subject:          strings.TrimSpace(subject),
		Sources:          req.GetStringSlice("sources", nil),
		MaxDocsPerSource: req.GetInt("max_docs_per_source", 0),
	})
	if err != nil {
		t.logger.Error("mcp_tool_failed", "tool", toolRetrieve, "error", err)
		return mcp.NewToolResultErrorFromErr("retrieval failed", err), nil
	}
	return jsonResult(outcome)
}

func (t *Tools) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.status.Status())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
