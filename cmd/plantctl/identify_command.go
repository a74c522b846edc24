package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kirillkom/plant-catalogue/internal/bootstrap"
	"github.com/kirillkom/plant-catalogue/internal/core/usecase"
)

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var rps float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "identify <photo-dir>",
		Short: "Identify every photo in a directory and catalogue the accepted ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || rps < 0 {
				return errors.New("--limit and --rps must not be negative")
			}
			app, err := ctx.openApp(cmd, bootstrap.Options{}, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			items, err := app.BatchUC.Run(cmd.Context(), args[0], usecase.BatchOptions{
				Limit:         limit,
				RatePerSecond: rps,
			})
			if asJSON {
				if encErr := writeJSON(cmd, items); encErr != nil {
					return encErr
				}
				return err
			}

			rows := make([][]string, 0, len(items))
			accepted := 0
			for _, item := range items {
				confidence := ""
				if item.Outcome == "Accepted" {
					accepted++
					confidence = strconv.FormatFloat(item.Confidence, 'f', 2, 64)
				}
				rows = append(rows, []string{item.File, item.Outcome, item.IdentifiedName, confidence, item.Message})
			}
			if len(rows) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"File", "Outcome", "Plant", "Confidence", "Message"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d photos accepted\n", accepted, len(items))
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Submit at most this many photos (0 = all)")
	cmd.Flags().Float64Var(&rps, "rps", 0, "Maximum submissions per second (0 = unpaced)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print per-photo outcomes as JSON")
	return cmd
}
