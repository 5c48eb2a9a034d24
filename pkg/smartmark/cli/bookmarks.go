package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mikepea/smartmark/pkg/smartmark/bookmarklist"
)

// openList loads the collection and subscribes to its changes.
func (o *RootOptions) openList(cmd *cobra.Command) (*bookmarklist.List, error) {
	c, err := o.sessionClient()
	if err != nil {
		return nil, err
	}
	initial, err := c.List(cmd.Context())
	if err != nil {
		return nil, explain(err)
	}
	// The server scopes the feed to the token's user.
	l, err := bookmarklist.Open(cmd.Context(), c, 0, initial, bookmarklist.WithLogger(o.log))
	if err != nil {
		return nil, explain(err)
	}
	return l, nil
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title> <url>",
		Short: "Add a bookmark",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openList(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			switch err := l.RequestAdd(cmd.Context(), args[0], args[1]); {
			case errors.Is(err, bookmarklist.ErrDuplicateURL):
				return errors.New(bookmarklist.MsgDuplicate)
			case errors.Is(err, bookmarklist.ErrEmptyField):
				return errors.New("title and url must not be empty")
			case err != nil:
				return fmt.Errorf("%s: %w", bookmarklist.MsgAddFailed, explain(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), bookmarklist.MsgAdded)
			return nil
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List bookmarks, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return fmt.Errorf("invalid page %d", page)
			}
			c, err := opts.sessionClient()
			if err != nil {
				return err
			}
			rows, err := c.List(cmd.Context())
			if err != nil {
				return explain(err)
			}

			state := bookmarklist.NewState(rows)
			state.Page = page
			return Render(cmd.OutOrStdout(), bookmarklist.Paginate(state))
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page to show")

	return cmd
}

// NewRmCommand creates the rm command.
func NewRmCommand(opts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a bookmark",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid bookmark id %q", args[0])
			}

			l, err := opts.openList(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			var confirm bookmarklist.Confirmer = PromptConfirmer{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
			if yes {
				confirm = bookmarklist.AlwaysConfirm
			}

			switch err := l.RequestDelete(cmd.Context(), uint(id), confirm); {
			case errors.Is(err, bookmarklist.ErrCancelled):
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			case bookmarklist.KindOf(err) == bookmarklist.KindNotFound:
				return fmt.Errorf("%s: bookmark %d not found", bookmarklist.MsgDeleteFailed, id)
			case err != nil:
				return fmt.Errorf("%s: %w", bookmarklist.MsgDeleteFailed, explain(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), bookmarklist.MsgDeleted)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")

	return cmd
}
