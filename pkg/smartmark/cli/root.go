// Package cli is the smartmark terminal client.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikepea/smartmark/pkg/smartmark/client"
	"github.com/mikepea/smartmark/pkg/smartmark/logger"
)

// ErrNotLoggedIn is returned by commands that need a session when none is
// stored.
var ErrNotLoggedIn = errors.New("not logged in: run `smartmark login`")

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Home    string
	Verbose bool

	settings *Settings
	log      logger.Logger
}

// NewRootCommand creates the root command for the smartmark CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "smartmark",
		Short: "Smartmark - your bookmarks, live",
		Long:  "A terminal client for a smartmark server: add, list and delete bookmarks and watch them change live.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings(cmd)
			if err != nil {
				return err
			}
			opts.settings = s
			opts.log = logger.NewNop()
			if opts.Verbose {
				opts.log = logger.New("debug", true)
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "server URL (default http://localhost:8080)")
	cmd.PersistentFlags().StringVar(&opts.Home, "home", "", "directory for the session token and config (default ~/.smartmark)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewRmCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// newClient builds an API client carrying token.
func (o *RootOptions) newClient(token string) *client.Client {
	return client.New(o.settings.Server,
		client.WithToken(token),
		client.WithTimeout(o.settings.Timeout),
		client.WithLogger(o.log))
}

// sessionClient builds a client from the stored token.
func (o *RootOptions) sessionClient() (*client.Client, error) {
	token, err := o.settings.LoadToken()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotLoggedIn
	}
	return o.newClient(token), nil
}

// explain turns a rejected session into a login hint.
func explain(err error) error {
	if errors.Is(err, client.ErrUnauthenticated) {
		return fmt.Errorf("session expired or invalid, run `smartmark login`: %w", err)
	}
	return err
}
