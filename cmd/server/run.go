package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"roundabout-sync/internal/sync"
)

var (
	runToken string
	runJSON  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync to the home base and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := a.manager.Run(ctx, sync.RunOptions{Token: runToken, Trigger: "cli"})
		if report == nil {
			return err
		}

		if runJSON {
			out, _ := jsoniter.MarshalIndent(report, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
		} else {
			printReport(cmd, report)
		}

		if err != nil {
			return errors.New("sync finished with errors")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runToken, "token", "", "override the configured home base API token")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the report as JSON")
}

func printReport(cmd *cobra.Command, r *sync.Report) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run %s to %s (%s)\n", r.RunID, r.Target, r.Status)
	fmt.Fprintf(w, "Cursor: %s  Took: %s  Last status: %d\n",
		r.Cursor.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.LastStatusCode)
	for _, kind := range sync.Kinds() {
		s := r.Stats[kind]
		fmt.Fprintf(w, "  %-11s created=%d updated=%d failed=%d\n", kind, s.Created, s.Updated, s.Failed)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e.Error())
	}
}
