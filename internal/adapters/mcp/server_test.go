package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

type ingestFake struct {
	err      error
	filename string
	body     string
}

func (f *ingestFake) Upload(_ context.Context, filename, _ string, body io.Reader) (*domain.EnrichedRecord, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.filename = filename
	f.body = string(raw)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EnrichedRecord{ClassificationResult: domain.ClassificationResult{IdentifiedName: "Tulsi", Confidence: 0.92}}, nil
}

type catalogueFake struct {
	entries        []domain.CatalogueEntry
	err            error
	excludeUnknown bool
}

func (f *catalogueFake) List(_ context.Context, excludeUnknown bool) ([]domain.CatalogueEntry, error) {
	f.excludeUnknown = excludeUnknown
	return f.entries, f.err
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %+v", res)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestListPlantsAppliesLimitAndUnknownFilter(t *testing.T) {
	catalogue := &catalogueFake{entries: []domain.CatalogueEntry{
		{ID: "3", Record: json.RawMessage(`{"identified_name":"Neem"}`)},
		{ID: "2", Record: json.RawMessage(`{"identified_name":"Tulsi"}`)},
		{ID: "1", Record: json.RawMessage(`{"identified_name":"Mint"}`)},
	}}
	s := NewServer(nil, catalogue, "test", nil)

	res, err := s.listPlants(context.Background(), callRequest(map[string]any{"limit": float64(2)}))
	if err != nil {
		t.Fatalf("list plants: %v", err)
	}
	if !catalogue.excludeUnknown {
		t.Fatalf("unknown entries must be excluded by default")
	}
	var records []map[string]any
	if err := json.Unmarshal([]byte(resultText(t, res)), &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 2 || records[0]["identified_name"] != "Neem" {
		t.Fatalf("unexpected records %v", records)
	}
}

func TestListPlantsIncludeUnknown(t *testing.T) {
	catalogue := &catalogueFake{}
	s := NewServer(nil, catalogue, "test", nil)

	if _, err := s.listPlants(context.Background(), callRequest(map[string]any{"include_unknown": true})); err != nil {
		t.Fatalf("list plants: %v", err)
	}
	if catalogue.excludeUnknown {
		t.Fatalf("include_unknown must disable the filter")
	}
}

func TestListPlantsStoreFailureIsToolError(t *testing.T) {
	s := NewServer(nil, &catalogueFake{err: errors.New("db down")}, "test", nil)

	res, err := s.listPlants(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError || strings.Contains(resultText(t, res), "db down") {
		t.Fatalf("expected sanitized tool error, got %+v", res)
	}
}

func TestIdentifyPlantUploadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tulsi.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	ingest := &ingestFake{}
	s := NewServer(ingest, &catalogueFake{}, "test", nil)

	res, err := s.identifyPlant(context.Background(), callRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("identify plant: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error %q", resultText(t, res))
	}
	if ingest.filename != "tulsi.jpg" || ingest.body != "jpeg-bytes" {
		t.Fatalf("unexpected upload %q %q", ingest.filename, ingest.body)
	}
	if !strings.Contains(resultText(t, res), `"identified_name": "Tulsi"`) {
		t.Fatalf("unexpected result %q", resultText(t, res))
	}
}

func TestIdentifyPlantRejectionIsToolError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rock.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	ingest := &ingestFake{err: &domain.Rejection{Reason: domain.ErrUnknownSubject, Confidence: 0.9, MinConfidence: 0.6}}
	s := NewServer(ingest, &catalogueFake{}, "test", nil)

	res, err := s.identifyPlant(context.Background(), callRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	text := resultText(t, res)
	if !res.IsError || !strings.HasPrefix(text, domain.CategoryUnknownSubject+":") {
		t.Fatalf("unexpected result %q", text)
	}
}

func TestIdentifyPlantRequiresPath(t *testing.T) {
	s := NewServer(&ingestFake{}, &catalogueFake{}, "test", nil)

	res, err := s.identifyPlant(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing path")
	}
}
