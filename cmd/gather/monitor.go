package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatherhq/gather/internal/config"
	"github.com/gatherhq/gather/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	GroupID: "advanced",
	Short:   "Start the WebSocket sync monitor",
	Long: `Start a local WebSocket server that broadcasts session and sync
activity, useful for watching the offline-first behavior while you
exercise the CLI or for wiring up a dashboard.

Messages:
- session_update: signed_in, signed_out, refreshed
- sync_activity: repository reads and writes, flagged when a read was
  served from the cache instead of the network

With --refresh > 0 the monitor polls the event list on that interval so
connected clients see sync traffic without a second terminal.

Connect with any WebSocket client:
  ws://localhost:<port>/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		refresh, _ := cmd.Flags().GetDuration("refresh")

		cfg, err := config.Load()
		if err != nil {
			fatal("%v", err)
		}
		if port == 0 {
			port = cfg.MonitorPort
		}
		server := monitor.NewServer(&monitor.Config{
			Port:   port,
			Logger: cfg.NewLogger("[monitor] "),
		})

		a, err := newApp(server)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if err := server.Start(); err != nil {
			fatal("failed to start monitor: %v", err)
		}
		server.WatchSessions(a.sessions)

		fmt.Printf("Monitor listening on ws://localhost%s/ws\n", portSuffix(server.Addr()))
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if refresh > 0 {
			go pollEvents(ctx, a, refresh)
		}

		<-ctx.Done()

		fmt.Println("\nShutting down monitor...")
		if err := server.Stop(); err != nil {
			fatal("%v", err)
		}
	},
}

// pollEvents drives periodic list reads so the monitor has something to
// broadcast; each read also refreshes the cache as a side effect.
func pollEvents(ctx context.Context, a *appContext, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.service.ListEvents(ctx, ""); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: refresh failed: %v\n", err)
			}
		}
	}
}

func portSuffix(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return addr
}

func init() {
	monitorCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	monitorCmd.Flags().Duration("refresh", 0, "Poll the event list on this interval (0 = off)")
	rootCmd.AddCommand(monitorCmd)
}
