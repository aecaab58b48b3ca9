package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/martinemde/oxbot/transcript"
)

func openHistory(flags *globalFlags) (*transcript.Store, error) {
	store, err := openSettings(flags)
	if err != nil {
		return nil, err
	}
	return openTranscript(store)
}

func runHistoryList(cmd *cobra.Command, flags *globalFlags) error {
	ts, err := openHistory(flags)
	if err != nil {
		return err
	}
	defer ts.Close()

	sums, err := ts.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	if len(sums) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversations found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tTURNS\tTOKENS\tTITLE")
	for _, s := range sums {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.Turns, s.Usage.TotalTokens, s.Title)
	}
	return w.Flush()
}

func runHistoryExport(cmd *cobra.Command, flags *globalFlags, sessionID, format, output string) error {
	f, err := transcript.ParseFormat(format)
	if err != nil {
		return err
	}
	ts, err := openHistory(flags)
	if err != nil {
		return err
	}
	defer ts.Close()

	if output == "-" {
		return ts.Export(cmd.Context(), cmd.OutOrStdout(), sessionID, f)
	}
	if output == "" {
		output = transcript.ExportFileName(f, time.Now())
	}
	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := ts.Export(cmd.Context(), file, sessionID, f); err != nil {
		file.Close()
		os.Remove(output)
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, flags *globalFlags, sessionID string) error {
	ts, err := openHistory(flags)
	if err != nil {
		return err
	}
	defer ts.Close()
	if err := ts.DeleteSession(cmd.Context(), sessionID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", sessionID)
	return nil
}

