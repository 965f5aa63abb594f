package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatherhq/gather/internal/types"
	"github.com/gatherhq/gather/internal/ui"
)

var rsvpCmd = &cobra.Command{
	Use:     "rsvp",
	GroupID: "data",
	Short:   "Vote on and inspect event attendance",
}

var rsvpVoteCmd = &cobra.Command{
	Use:   "vote <event-id> <going|not_going|maybe>",
	Short: "Record your RSVP for an event",
	Long: `Record your RSVP.

Voting is idempotent: voting again on the same event replaces your
previous answer instead of adding a second one.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		status, err := types.ParseAttendanceStatus(args[1])
		if err != nil {
			fatal("%v", err)
		}

		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		att, err := a.service.VoteAttendance(cmd.Context(), args[0], status)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s RSVP recorded: %s\n", ui.RenderPass("✓"), att.Status)
	},
}

var rsvpListCmd = &cobra.Command{
	Use:   "list <event-id>",
	Short: "List RSVPs for an event, most recent first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		atts, err := a.service.GetAttendances(cmd.Context(), args[0])
		if err != nil {
			fatal("%v", err)
		}

		if len(atts) == 0 {
			fmt.Println("No RSVPs yet.")
			return
		}
		for i := range atts {
			fmt.Println(ui.FormatAttendanceRow(&atts[i]))
		}
	},
}

func init() {
	rsvpCmd.AddCommand(rsvpVoteCmd)
	rsvpCmd.AddCommand(rsvpListCmd)
	rootCmd.AddCommand(rsvpCmd)
}
