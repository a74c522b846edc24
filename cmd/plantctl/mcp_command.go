package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/plant-catalogue/internal/adapters/mcp"
	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/core/ports"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve list_plants and identify_plant as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.openApp(cmd, bootstrap.Options{SkipClassifier: readOnly}, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			var ingest ports.PlantIngestor
			if app.IngestUC != nil {
				ingest = app.IngestUC
			}
			return mcpadapter.NewServer(ingest, app.Catalogue, version, app.Logger).ServeStdio()
		},
	}

	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Only offer list_plants; no classifier credentials needed")
	return cmd
}
