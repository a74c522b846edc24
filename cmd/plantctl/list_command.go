package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogue entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.openApp(cmd, bootstrap.Options{SkipClassifier: true, SkipQueue: true}, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := app.Catalogue.List(cmd.Context(), !all)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if asJSON {
				records := make([]json.RawMessage, 0, len(entries))
				for _, entry := range entries {
					records = append(records, entry.Record)
				}
				return writeJSON(cmd, records)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Catalogue is empty")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, listRow(entry))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Uploaded", "Plant", "Scientific name", "Confidence"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include entries that could not be identified")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many entries (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the records as JSON")
	return cmd
}

func listRow(entry domain.CatalogueEntry) []string {
	var head struct {
		IdentifiedName string  `json:"identified_name"`
		ScientificName string  `json:"scientific_name"`
		Confidence     float64 `json:"confidence"`
	}
	if err := json.Unmarshal(entry.Record, &head); err != nil {
		return []string{entry.ID, formatUploaded(entry.UploadedAt), "(unreadable record)", "", ""}
	}
	return []string{
		entry.ID,
		formatUploaded(entry.UploadedAt),
		head.IdentifiedName,
		head.ScientificName,
		strconv.FormatFloat(head.Confidence, 'f', 2, 64),
	}
}

func formatUploaded(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
