package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/rag"
)

const ToolName = "search_guidelines"

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (rag.Result, error)
}

type hit struct {
	Score float32 `json:"score"`
	File  string  `json:"file"`
	Page  int     `json:"page,omitempty"`
	Text  string  `json:"text"`
}

// New exposes guideline retrieval as an MCP tool
func New(retriever Retriever, defaultK int, version string, log zerolog.Logger) *server.MCPServer {
	tool := mcp.NewTool(ToolName,
		mcp.WithDescription("Search the uploaded clinical nutrition guidelines and return the most relevant passages"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of passages to return"),
		),
	)

	srv := server.NewMCPServer("medvise", version, server.WithToolCapabilities(false))
	srv.AddTool(tool, searchHandler(retriever, defaultK, log))
	return srv
}

func searchHandler(retriever Retriever, defaultK int, log zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		k := request.GetInt("k", defaultK)
		if k <= 0 {
			k = defaultK
		}

		res, err := retriever.Retrieve(ctx, q, k)
		if err != nil {
			log.Error().Err(err).Str("query", q).Msg("MCP search failed")
			return mcp.NewToolResultError(err.Error()), nil
		}

		var response strings.Builder
		for _, item := range res.Items {
			raw, err := json.Marshal(hit{
				Score: item.Score,
				File:  item.Chunk.SourceID,
				Page:  item.Chunk.PageNumber,
				Text:  item.Chunk.Text,
			})
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			response.Write(raw)
			response.WriteString("\n")
		}
		log.Debug().Str("query", q).Int("hits", len(res.Items)).Msg("MCP search")
		return mcp.NewToolResultText(response.String()), nil
	}
}
