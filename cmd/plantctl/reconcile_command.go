package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/config"
	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var remote bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Back-fill derived fields (wiki link, reference image) on stored entries",
		Long: "Adds derived fields that are missing from catalogue entries. Existing values are never changed " +
			"and the classifier is never called. Use --dir to reconcile a directory of JSON records instead of " +
			"the configured catalogue, or --remote to ask the worker to run it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote && dir != "" {
				return errors.New("--remote and --dir are mutually exclusive")
			}
			if remote {
				return requestRemoteReconcile(cmd, ctx)
			}

			var mutate func(*config.Config)
			if dir != "" {
				info, err := os.Stat(dir)
				if err != nil {
					return fmt.Errorf("records dir: %w", err)
				}
				if !info.IsDir() {
					return fmt.Errorf("records dir: %s is not a directory", dir)
				}
				mutate = func(cfg *config.Config) {
					cfg.CatalogueDriver = config.DriverJSONDir
					cfg.JSONDirPath = dir
				}
			}

			app, err := ctx.openApp(cmd, bootstrap.Options{SkipClassifier: true, SkipQueue: true}, mutate)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.ReconcileUC.Run(cmd.Context())
			if errors.Is(err, domain.ErrJobRunning) {
				return errors.New("another reconcile run is in progress")
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Scanned", "Updated", "Skipped", "Failed"},
				[][]string{{
					strconv.Itoa(report.Scanned),
					strconv.Itoa(report.Updated),
					strconv.Itoa(report.Skipped),
					strconv.Itoa(report.Failed),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Reconcile the JSON records in this directory")
	cmd.Flags().BoolVar(&remote, "remote", false, "Publish a reconcile request for the worker over NATS")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func requestRemoteReconcile(cmd *cobra.Command, ctx *commandContext) error {
	app, err := ctx.openApp(cmd, bootstrap.Options{SkipClassifier: true}, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Queue == nil {
		return errors.New("NATS_URL is not set; cannot reach the worker")
	}
	requestedBy := "plantctl"
	if host, err := os.Hostname(); err == nil {
		requestedBy += "@" + host
	}
	if err := app.Queue.RequestReconcile(cmd.Context(), requestedBy); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Reconcile requested")
	return nil
}
