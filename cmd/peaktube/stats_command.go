package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/database/repository"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show user and delivery totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			users, err := repository.NewUserRepository(db.DB).GetTotalUsers(cmd.Context())
			if err != nil {
				return err
			}
			deliveries := repository.NewDeliveryRepository(db.DB)
			byKind, err := deliveries.CountByKind(cmd.Context())
			if err != nil {
				return err
			}
			popular, err := deliveries.GetPopularResources(cmd.Context(), top)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]column{{title: "Metric"}, {title: "Value", right: true}},
				[][]any{
					{"Users", users},
					{"Files delivered", byKind[models.DeliveryFile]},
					{"Links delivered", byKind[models.DeliveryLink]},
				},
			))
			if len(popular) > 0 {
				fmt.Fprintln(out, renderPopular(popular))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "Number of popular videos to list")
	return cmd
}

func renderPopular(popular []repository.PopularResource) string {
	rows := make([][]any, 0, len(popular))
	for i, p := range popular {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = p.ResourceID
		}
		rows = append(rows, []any{humanize.Ordinal(i + 1), title, p.DeliveryCount})
	}
	return renderTable([]column{{title: "#", right: true}, {title: "Video"}, {title: "Deliveries", right: true}}, rows)
}
