package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/database/repository"
	"github.com/artur/peaktube/internal/links"
)

func newLinksCommand(ctx *commandContext) *cobra.Command {
	linksCmd := &cobra.Command{
		Use:   "links",
		Short: "Inspect minted direct links",
	}

	linksCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List direct links",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			svc := links.NewService(repository.NewLinkRepository(db.DB), cfg.Links.TTL, cfg.Links.BaseURL)
			list, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No links")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderLinks(list, svc, time.Now()))
			return nil
		},
	})

	return linksCmd
}

func renderLinks(list []*models.DirectLink, svc *links.Service, now time.Time) string {
	rows := make([][]any, 0, len(list))
	for _, l := range list {
		status := "active"
		if l.Expired(now) {
			status = "expired"
		}
		rows = append(rows, []any{l.Title, svc.PublicURL(l), moment{at: l.ExpiresAt, now: now}, status})
	}
	return renderTable([]column{{title: "Title"}, {title: "URL"}, {title: "Expires", right: true}, {title: "Status"}}, rows)
}
