package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatherhq/gather/internal/api"
	"github.com/gatherhq/gather/internal/app"
	"github.com/gatherhq/gather/internal/cache"
	"github.com/gatherhq/gather/internal/config"
	"github.com/gatherhq/gather/internal/credstore"
	"github.com/gatherhq/gather/internal/repo"
	"github.com/gatherhq/gather/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "gather",
	Short: "Offline-first client for the gather event service",
	Long: `gather keeps a local cache of your events and RSVPs in sync with the
gather server.

Reads always return something useful: when the server is reachable the
cache is refreshed, and when it is not the last-known-good snapshot is
served instead. Writes go to the server first and never succeed against
the cache alone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "auth", Title: "Authentication:"},
		&cobra.Group{ID: "data", Title: "Events & RSVPs:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

// appContext bundles everything a command needs, built fresh per
// invocation by explicit constructor injection. There are no package
// level singletons; the repositories, session manager, and stores only
// exist inside the command that asked for them.
type appContext struct {
	cfg      *config.Config
	client   *api.Client
	store    *cache.Store
	creds    credstore.Store
	sessions *session.Manager
	service  *app.Service
}

// newApp is the composition root.
func newApp(notifier repo.Notifier) (*appContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	creds, err := openCredStore(cfg)
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.ServerURL,
		api.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second}),
		api.WithLogger(cfg.NewLogger("[api] ")),
	)

	sessions := session.New(client, creds, store, cfg.NewLogger("[session] "))
	client.SetTokenSource(sessions)

	opts := repo.Options{
		CacheEnabled:   cfg.CacheEnabled,
		NetworkEnabled: cfg.NetworkEnabled,
	}
	repoLogger := cfg.NewLogger("[repo] ")
	events := repo.Events(client, store, opts, repoLogger, notifier)
	attendances := repo.Attendances(client, store, opts, repoLogger, notifier)

	service := app.NewService(sessions, events, attendances, client, cfg.NewLogger("[app] "))

	return &appContext{
		cfg:      cfg,
		client:   client,
		store:    store,
		creds:    creds,
		sessions: sessions,
		service:  service,
	}, nil
}

// Close releases the cache database.
func (a *appContext) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// openCredStore picks the credential backend: keyring when available,
// file otherwise.
func openCredStore(cfg *config.Config) (credstore.Store, error) {
	switch cfg.CredStore {
	case "file":
		return credstore.OpenFile(cfg.CredFile)
	case "keyring":
		return credstore.NewKeyring()
	case "auto", "":
		if kr, err := credstore.NewKeyring(); err == nil {
			return kr, nil
		}
		return credstore.OpenFile(cfg.CredFile)
	default:
		return nil, fmt.Errorf("unknown cred_store %q (want keyring, file, or auto)", cfg.CredStore)
	}
}

// fatal prints a styled error and exits. Commands use it for failures
// after argument parsing succeeded.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
