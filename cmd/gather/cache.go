package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatherhq/gather/internal/ui"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "advanced",
	Short:   "Inspect and manage the local cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache location and contents",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		stats, err := a.store.GetStats(cmd.Context())
		if err != nil {
			fatal("%v", err)
		}

		info, err := os.Stat(a.store.Path())
		sizeStr := "unknown"
		if err == nil {
			size := info.Size()
			switch {
			case size > 1024*1024:
				sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
			case size > 1024:
				sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
			default:
				sizeStr = fmt.Sprintf("%d bytes", size)
			}
		}

		fmt.Printf("\n%s Local cache\n\n", ui.RenderAccent("📦"))
		fmt.Printf("Location:    %s\n", a.store.Path())
		fmt.Printf("Size:        %s\n", sizeStr)
		fmt.Printf("Events:      %d\n", stats.Events)
		fmt.Printf("Attendances: %d\n", stats.Attendances)
		fmt.Println()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the local cache",
	Long: `Remove all cached events and attendances.

The next read against a reachable server repopulates the cache; with no
network, reads will be empty until then.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.store.ClearAll(cmd.Context()); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Cache cleared\n", ui.RenderPass("✓"))
	},
}

var settingsCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Read and write app settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Read a setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		value, err := a.sessions.Setting(args[0])
		if err != nil {
			fatal("setting %s is not set", args[0])
		}
		fmt.Println(value)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Write a setting",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(nil)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := a.sessions.SetSetting(args[0], args[1]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s %s set\n", ui.RenderPass("✓"), args[0])
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(settingsCmd)
}
