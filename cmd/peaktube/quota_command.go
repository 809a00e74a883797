package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/artur/peaktube/internal/database/models"
	"github.com/artur/peaktube/internal/database/repository"
	"github.com/artur/peaktube/internal/entitlement"
	"github.com/artur/peaktube/internal/quota"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and adjust user quotas",
	}

	quotaCmd.AddCommand(&cobra.Command{
		Use:   "show <telegram-user-id>",
		Short: "Show a user's quota counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			db, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := repository.NewUserRepository(db.DB).GetByTelegramID(cmd.Context(), userID)
			if err != nil {
				return err
			}
			store := quota.NewStore(repository.NewQuotaRepository(db.DB))
			rec := store.GetSnapshot(cmd.Context(), userID)
			plan, _ := entitlement.ParsePlan(rec.Plan)
			snap := entitlement.Resolve(plan, cfg.Payments.Enabled)
			fmt.Fprintln(cmd.OutOrStdout(), renderQuota(user, rec, snap, time.Now()))
			return nil
		},
	})

	quotaCmd.AddCommand(&cobra.Command{
		Use:   "set-plan <telegram-user-id> <free|premium|professional>",
		Short: "Change a user's plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			plan, ok := entitlement.ParsePlan(args[1])
			if !ok {
				return fmt.Errorf("unknown plan %q", args[1])
			}
			db, err := ctx.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			store := quota.NewStore(repository.NewQuotaRepository(db.DB))
			if err := store.SetPlan(cmd.Context(), userID, plan); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d is now on %s\n", userID, plan)
			return nil
		},
	})

	return quotaCmd
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func renderQuota(user *models.User, rec models.QuotaRecord, snap entitlement.Snapshot, now time.Time) string {
	limit := "unlimited"
	if !entitlement.IsUnbounded(snap.DailyLimit) {
		limit = strconv.Itoa(snap.DailyLimit)
	}
	maxHeight := "unlimited"
	if !entitlement.IsUnbounded(snap.MaxResolutionHeight) {
		maxHeight = fmt.Sprintf("%dp", snap.MaxResolutionHeight)
	}

	reset := moment{now: now}
	if !rec.LastResetAt.IsZero() {
		reset.at = rec.LastResetAt.Add(quota.DownloadWindow)
	}

	rows := [][]any{
		{"User", userLabel(user)},
		{"Plan", string(snap.Plan)},
		{"Downloads today", fmt.Sprintf("%d / %s", rec.DownloadsToday, limit)},
		{"Downloads total", rec.DownloadsTotal},
		{"Max quality", maxHeight},
		{"Subtitles", lockLabel(snap.SubtitleLocked)},
		{"AI assists used", rec.AiAssistUsed},
		{"Window reset", reset},
	}
	return renderTable([]column{{title: "Field"}, {title: "Value", right: true}}, rows)
}

// userLabel names a known user by first name and @username when present.
func userLabel(u *models.User) string {
	switch {
	case u == nil:
		return "-"
	case u.FirstName != "" && u.Username != "":
		return u.FirstName + " (@" + u.Username + ")"
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	}
	return "-"
}

func lockLabel(locked bool) string {
	if locked {
		return "locked"
	}
	return "available"
}
