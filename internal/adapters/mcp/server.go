// Package mcpadapter exposes the catalogue and the identification pipeline as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
)

const (
	ServerName = "plant-catalogue"

	ToolListPlants    = "list_plants"
	ToolIdentifyPlant = "identify_plant"
)

type Server struct {
	ingest    ports.PlantIngestor
	catalogue ports.CatalogueReader
	logger    *slog.Logger
	mcp       *server.MCPServer
}

// NewServer registers the tools. ingest may be nil, in which case identify_plant
// is not offered.
func NewServer(ingest ports.PlantIngestor, catalogue ports.CatalogueReader, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ingest:    ingest,
		catalogue: catalogue,
		logger:    logger.With("component", "mcp"),
		mcp:       server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolListPlants,
		mcp.WithDescription("List identified plants in the catalogue, newest first."),
		mcp.WithBoolean("include_unknown", mcp.Description("Include entries the classifier could not identify.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of plants to return. 0 returns all.")),
	), s.listPlants)

	if ingest != nil {
		s.mcp.AddTool(mcp.NewTool(ToolIdentifyPlant,
			mcp.WithDescription("Identify the plant in a local image file and add it to the catalogue when accepted."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to a jpeg, png, gif or webp image.")),
		), s.identifyPlant)
	}
	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) listPlants(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeUnknown := request.GetBool("include_unknown", false)
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	entries, err := s.catalogue.List(ctx, !includeUnknown)
	if err != nil {
		s.logger.Error("list_plants_failed", "error", err)
		return mcp.NewToolResultError(domain.UserMessage(err)), nil
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	records := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.Record)
	}
	return jsonResult(records)
}

func (s *Server) identifyPlant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot open %s: %v", path, err)), nil
	}
	defer file.Close()

	record, err := s.ingest.Upload(ctx, filepath.Base(path), "", file)
	if err != nil {
		s.logger.Info("identify_plant_failed",
			"path", path,
			"category", domain.Category(err),
			"reason", domain.Diagnostic(err),
			"error", err,
		)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", domain.Category(err), domain.UserMessage(err))), nil
	}
	return jsonResult(record)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
