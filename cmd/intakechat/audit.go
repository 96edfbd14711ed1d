package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/northbeam/portal-api/config"
	"github.com/northbeam/portal-api/database"
	"github.com/northbeam/portal-api/services"
	"github.com/spf13/cobra"
)

// auditCmd prints the recorded orchestrator events of one session
var auditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Show the audit trail of an intake session",
	Long: `Reads the intake_events table using the same DB_* settings as the API
server and prints every action recorded for the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	if err := config.LoadENV(); err != nil {
		return err
	}
	env, err := config.Get()
	if err != nil {
		return err
	}
	if !env.DatabaseConfigured() {
		return fmt.Errorf("database is not configured: set DB_NAME and DB_USER_NAME")
	}

	logger := newLogger()
	store, err := database.StartGORM(env, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := services.NewAuditStore(store.DB(), logger).SessionEvents(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load session events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No events recorded for session %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tTHREAD\tMESSAGES\tFILES\tDURATION\tERROR")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%dms\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Action,
			e.Outcome,
			e.ThreadID,
			e.MessageCount,
			strings.Join(e.FileIDs, ","),
			e.DurationMs,
			e.ErrorMsg,
		)
	}
	return w.Flush()
}
