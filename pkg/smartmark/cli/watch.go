package cli

import (
	"github.com/spf13/cobra"

	"github.com/mikepea/smartmark/pkg/smartmark/tui"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Browse bookmarks with live updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openList(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			return tui.Run(cmd.Context(), l, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
