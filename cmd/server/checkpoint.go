package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset the sync high-water mark",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the checkpoint of the configured home base",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.manager.Checkpoint(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if state == nil || !state.LastSyncTime.Valid {
			fmt.Fprintf(w, "%s: no successful sync yet\n", a.manager.Target())
			return nil
		}
		fmt.Fprintf(w, "%s: last sync %s, %d rows pushed, status %s\n",
			state.Target, state.LastSyncTime.Time.Format(time.RFC3339), state.RowsSynced, state.Status)
		if state.ErrorMessage.Valid && state.ErrorMessage.String != "" {
			fmt.Fprintf(w, "last error: %s\n", state.ErrorMessage.String)
		}
		return nil
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the checkpoint and id mappings; the next run starts from the field instance start date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.ResetCheckpoint(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: checkpoint reset\n", a.manager.Target())
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd, checkpointResetCmd)
}
