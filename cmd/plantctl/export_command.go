package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/plant-catalogue/internal/adapters/export"
	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var formatFlag string
	var out string
	var all bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the catalogue as a JSON bundle or an XLSX sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			if out == "" || (out == "-" && format == export.FormatXLSX) {
				return errors.New("--out must name a file (use - for stdout with json)")
			}

			app, err := ctx.openApp(cmd, bootstrap.Options{SkipClassifier: true, SkipQueue: true}, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			entries, err := app.Catalogue.List(cmd.Context(), !all)
			if err != nil {
				return err
			}

			if out == "-" {
				return export.Write(cmd.OutOrStdout(), format, entries)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := export.Write(f, format, entries); err != nil {
				_ = f.Close()
				_ = os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close export file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d plants to %s\n", len(entries), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatFlag, "format", "f", string(export.FormatJSON), "Output format: json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file, or - for stdout (json only)")
	cmd.Flags().BoolVar(&all, "all", false, "Include entries that could not be identified")
	return cmd
}
