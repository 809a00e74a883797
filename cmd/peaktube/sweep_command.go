package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artur/peaktube/internal/database/repository"
	"github.com/artur/peaktube/internal/links"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired direct links",
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
			removed, err := svc.SweepExpiredLinks(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired link(s)\n", removed)
			return nil
		},
	}
}
