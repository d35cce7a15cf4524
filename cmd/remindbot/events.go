package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and cancel stored reminders",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reminders, soonest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetInt64("owner")

		off, err := app.OpenOffline(cmd.Context(), cfgPath, logx.Nop())
		if err != nil {
			return err
		}
		defer off.Close()

		var events []storage.Event
		if owner != 0 {
			events, err = off.Reminders.List(cmd.Context(), owner)
		} else {
			events, err = off.Store.GetAll(cmd.Context())
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOWNER\tWHEN\tREPEATS\tNAME")
		for _, ev := range events {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", ev.ID, ev.OwnerID, ev.When.In(off.Config.Location).Format("2006-01-02 15:04 MST"), ev.Recurrence, ev.Name)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d reminder(s)\n", len(events))
		return nil
	},
}

var eventsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel one of an owner's reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetInt64("owner")
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}

		off, err := app.OpenOffline(cmd.Context(), cfgPath, logx.Nop())
		if err != nil {
			return err
		}
		defer off.Close()

		ev, err := off.Reminders.Cancel(cmd.Context(), owner, id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("reminder %d not found for owner %d", id, owner)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d %s\n", ev.ID, ev.Name)
		return nil
	},
}

func init() {
	eventsListCmd.Flags().Int64("owner", 0, "only this owner's reminders")
	eventsCancelCmd.Flags().Int64("owner", 0, "owner (Telegram user id) of the reminder")
	_ = eventsCancelCmd.MarkFlagRequired("owner")

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsCancelCmd)
}
