package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/mailspider/internal/config"
	"github.com/nao1215/mailspider/internal/database"
	"github.com/nao1215/mailspider/internal/report"
)

// defaultHistoryLimit is the number of sessions listed without --limit.
const defaultHistoryLimit = 20

// errSessionNotFound is returned when a session ID has no stored session.
var errSessionNotFound = errors.New("session not found")

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show stored crawl sessions",
		Long: `History reads the sessions stored by 'mailspider crawl' and 'mailspider serve'.

Without arguments it lists the most recent sessions. With a session ID it
prints that session's full report.

Examples:
  # List the 20 most recent sessions
  mailspider history

  # List sessions of one host
  mailspider history --scope www.example.com

  # Show one session as JSON
  mailspider history -j 6f1c0b9e-2d7a-4f7e-9a51-3c2d8e0f4b11

  # Every address ever found on a host
  mailspider history --emails www.example.com

  # Every host with stored sessions
  mailspider history --scopes

  # Delete a session
  mailspider history --delete 6f1c0b9e-2d7a-4f7e-9a51-3c2d8e0f4b11`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
	cmd.Flags().StringP("scope", "s", "",
		"Only list sessions of this host")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of sessions listed (0 lists all)")
	cmd.Flags().StringP("emails", "e", "",
		"List every address found on this host across all sessions")
	cmd.Flags().Bool("scopes", false,
		"List every host with stored sessions")
	cmd.Flags().Bool("delete", false,
		"Delete the given session")
	cmd.Flags().BoolP("json", "j", false,
		"Print the session as JSON")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	deleteSession, err := cmd.Flags().GetBool("delete")
	if err != nil {
		return err
	}
	// Validate arguments before opening the database.
	if deleteSession && len(args) == 0 {
		return errors.New("--delete requires a session id")
	}

	out := cmd.OutOrStdout()

	if _, err := os.Stat(filepath.Join(dbDir, database.FileName)); os.IsNotExist(err) {
		fmt.Fprintln(out, "No crawl history found.")
		fmt.Fprintln(out, "\nUse 'mailspider crawl <url>' to crawl a site.")
		return nil
	}

	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	if len(args) == 1 {
		if deleteSession {
			return deleteStoredSession(ctx, out, db, args[0])
		}
		jsonOutput, err := cmd.Flags().GetBool("json")
		if err != nil {
			return err
		}
		return showSession(ctx, out, db, args[0], jsonOutput)
	}

	listScopes, err := cmd.Flags().GetBool("scopes")
	if err != nil {
		return err
	}
	if listScopes {
		return listStoredScopes(ctx, out, db)
	}

	emailsScope, err := cmd.Flags().GetString("emails")
	if err != nil {
		return err
	}
	if emailsScope != "" {
		return listScopeEmails(ctx, out, db, emailsScope)
	}

	scope, err := cmd.Flags().GetString("scope")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	return listSessions(ctx, out, db, scope, limit)
}

// showSession prints the full report of one stored session.
func showSession(ctx context.Context, out io.Writer, db *database.CrawlDB, id string, jsonOutput bool) error {
	result, err := db.GetResult(ctx, id)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("%w: %s", errSessionNotFound, id)
	}

	var w report.Writer
	if jsonOutput {
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	} else {
		w = report.NewSimpleWriter(out, report.WithVerbose(true), report.WithShowEmpty(true))
	}
	_, err = w.Write(result)
	return err
}

// deleteStoredSession removes one session.
func deleteStoredSession(ctx context.Context, out io.Writer, db *database.CrawlDB, id string) error {
	deleted, err := db.DeleteSession(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", errSessionNotFound, id)
	}
	fmt.Fprintf(out, "Deleted session %s\n", id)
	return nil
}

// listStoredScopes lists every host with stored sessions.
func listStoredScopes(ctx context.Context, out io.Writer, db *database.CrawlDB) error {
	scopes, err := db.ListScopes(ctx)
	if err != nil {
		return err
	}

	if len(scopes) == 0 {
		fmt.Fprintln(out, "No crawled hosts found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Crawled hosts (%d):\n\n", len(scopes))
	for _, s := range scopes {
		fmt.Fprintf(out, "  • %s\n", s)
	}
	fmt.Fprintln(out, "\nUse 'mailspider history --scope <host>' to see the sessions of a host.")
	return nil
}

// listScopeEmails prints every address stored for a host, one per line.
func listScopeEmails(ctx context.Context, out io.Writer, db *database.CrawlDB, scope string) error {
	emails, err := db.EmailsForScope(ctx, scope)
	if err != nil {
		return err
	}
	for _, addr := range emails {
		fmt.Fprintln(out, addr)
	}
	return nil
}

// listSessions prints a table of stored sessions, newest first.
func listSessions(ctx context.Context, out io.Writer, db *database.CrawlDB, scope string, limit int) error {
	sessions, err := db.ListSessions(ctx, scope, limit)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		if scope != "" {
			fmt.Fprintf(out, "No sessions found for %s\n", scope)
		} else {
			fmt.Fprintln(out, "No sessions found.")
		}
		return nil
	}

	fmt.Fprintf(out, "Crawl sessions (%d):\n\n", len(sessions))
	fmt.Fprintf(out, "  %-36s  %-19s  %-10s  %6s  %6s  %s\n",
		"ID", "Started", "Status", "Pages", "Emails", "Seed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))

	for _, s := range sessions {
		fmt.Fprintf(out, "  %-36s  %-19s  %-10s  %6d  %6d  %s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Status,
			s.PagesCrawled,
			s.EmailCount,
			s.SeedURL,
		)
	}

	fmt.Fprintln(out, "\nUse 'mailspider history <id>' to show a session.")
	return nil
}
