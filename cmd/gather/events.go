package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gatherhq/gather/internal/types"
	"github.com/gatherhq/gather/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	GroupID: "data",
	Short:   "Browse and manage events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events, soonest first",
	Long: `List events, refreshed from the server when reachable.

When the server is unreachable the last synced snapshot is shown instead;
the command only fails when there is neither network nor cached data.`,
	Run: func(cmd *cobra.Command, args []string) {
		filter, _ := cmd.Flags().GetString("filter")
		mine, _ := cmd.Flags().GetBool("mine")

		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		var events []types.Event
		if mine {
			events, err = a.service.MyEvents(cmd.Context())
		} else {
			events, err = a.service.ListEvents(cmd.Context(), filter)
		}
		if err != nil {
			fatal("%v", err)
		}

		if len(events) == 0 {
			fmt.Println("No events.")
			return
		}
		for i := range events {
			fmt.Println(ui.FormatEventRow(&events[i]))
		}
	},
}

var eventsShowCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		event, err := a.service.GetEvent(cmd.Context(), args[0])
		if err != nil {
			fatal("%v", err)
		}
		if event == nil {
			fatal("event %s not found (it may have been deleted)", args[0])
		}
		fmt.Print(ui.FormatEvent(event))
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an event",
	Long: `Create an event on the server.

The --date flag accepts ISO-8601 ("2026-09-01T18:00:00Z") or natural
language ("next friday 6pm"). Creation requires the server: there is no
offline event creation, because the server assigns event ids.`,
	Run: func(cmd *cobra.Command, args []string) {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		dateStr, _ := cmd.Flags().GetString("date")
		location, _ := cmd.Flags().GetString("location")
		allDay, _ := cmd.Flags().GetBool("all-day")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		maxAttendees, _ := cmd.Flags().GetInt("max-attendees")

		date, err := parseDate(dateStr)
		if err != nil {
			fatal("%v", err)
		}

		in := types.EventInput{
			Title:       title,
			Description: description,
			Date:        date,
			Location:    location,
			IsAllDay:    allDay,
			Tags:        tags,
		}
		if maxAttendees > 0 {
			in.MaxAttendees = &maxAttendees
		}

		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		event, err := a.service.CreateEvent(cmd.Context(), in)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Created event %s\n", ui.RenderPass("✓"), ui.RenderAccent(event.ID))
		fmt.Print(ui.FormatEvent(event))
	},
}

var eventsDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete an event you organize",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.service.DeleteEvent(cmd.Context(), args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Deleted event %s\n", ui.RenderPass("✓"), args[0])
	},
}

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export events as YAML or JSON",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		events, err := a.service.ListEvents(cmd.Context(), "")
		if err != nil {
			fatal("%v", err)
		}

		var data []byte
		switch format {
		case "yaml":
			data, err = yaml.Marshal(events)
		case "json":
			data, err = json.MarshalIndent(events, "", "  ")
		default:
			fatal("unknown format %q (want yaml or json)", format)
		}
		if err != nil {
			fatal("failed to encode events: %v", err)
		}

		if output == "" || output == "-" {
			fmt.Print(string(data))
			return
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			fatal("failed to write %s: %v", output, err)
		}
		fmt.Printf("%s Exported %d events to %s\n", ui.RenderPass("✓"), len(events), output)
	},
}

var interestsCmd = &cobra.Command{
	Use:     "interests",
	GroupID: "data",
	Short:   "List the interest tags offered by the server",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		interests, err := a.service.ListInterests(cmd.Context())
		if err != nil {
			fatal("%v", err)
		}
		for _, interest := range interests {
			fmt.Println(interest)
		}
	},
}

// parseDate accepts RFC 3339 first, then natural language.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("--date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(s, time.Now())
	if err != nil || result == nil {
		return time.Time{}, fmt.Errorf("could not understand date %q", s)
	}
	return result.Time, nil
}

func init() {
	eventsCreateCmd.Flags().String("title", "", "Event title")
	eventsCreateCmd.Flags().String("description", "", "Event description")
	eventsCreateCmd.Flags().String("date", "", "Event date (ISO-8601 or natural language)")
	eventsCreateCmd.Flags().String("location", "", "Event location")
	eventsCreateCmd.Flags().Bool("all-day", false, "All-day event")
	eventsCreateCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	eventsCreateCmd.Flags().Int("max-attendees", 0, "Attendee cap (0 = unlimited)")

	eventsListCmd.Flags().String("filter", "", "Free-text filter (title, description, location)")
	eventsListCmd.Flags().Bool("mine", false, "Only events you organize")

	eventsExportCmd.Flags().String("format", "yaml", "Output format: yaml or json")
	eventsExportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")

	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsShowCmd)
	eventsCmd.AddCommand(eventsCreateCmd)
	eventsCmd.AddCommand(eventsDeleteCmd)
	eventsCmd.AddCommand(eventsExportCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(interestsCmd)
}
