// Package export renders the catalogue as a JSON bundle or a spreadsheet.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"

	SheetName = "Plants"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "export.format", fmt.Errorf("unsupported format %q", raw))
	}
}

// Write renders entries in the given format. Entries are written in the order given.
func Write(w io.Writer, format Format, entries []domain.CatalogueEntry) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, entries)
	case FormatXLSX:
		return WriteXLSX(w, entries)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "export.write", fmt.Errorf("unsupported format %q", format))
	}
}

// WriteJSON writes the records as one indented JSON array, documents unchanged.
func WriteJSON(w io.Writer, entries []domain.CatalogueEntry) error {
	records := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.Record)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode json bundle: %w", err)
	}
	return nil
}

var columns = []string{
	"ID",
	"Uploaded at",
	"Identified name",
	"Scientific name",
	"Confidence",
	"Plant type",
	"Environment",
	"Difficulty",
	"Flowering",
	"Medicinal",
	"Edible",
	"Toxic to pets",
	"Origin region",
	"Wiki URL",
	"Image URL",
}

// WriteXLSX writes one row per entry under a bold header row.
func WriteXLSX(w io.Writer, entries []domain.CatalogueEntry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, entry := range entries {
		row, err := rowFor(entry)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row for entry %s: %w", entry.ID, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "O", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func rowFor(entry domain.CatalogueEntry) ([]any, error) {
	var record domain.EnrichedRecord
	if err := json.Unmarshal(entry.Record, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", entry.ID, err)
	}

	var wiki, image string
	if record.WikiURL != nil {
		wiki = *record.WikiURL
	}
	if record.ReferenceImage != nil {
		image = record.ReferenceImage.URL
	}

	return []any{
		entry.ID,
		entry.UploadedAt.UTC().Format(time.RFC3339),
		record.IdentifiedName,
		record.ScientificName,
		record.Confidence,
		record.PlantType,
		record.Environment,
		record.Difficulty,
		triState(record.IsFlowering),
		triState(record.IsMedicinal),
		triState(record.IsEdible),
		triState(record.IsToxicToPets),
		record.OriginRegion,
		wiki,
		image,
	}, nil
}

func triState(v *bool) string {
	switch {
	case v == nil:
		return "unknown"
	case *v:
		return "yes"
	default:
		return "no"
	}
}
