package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mikepea/smartmark/pkg/smartmark/importexport"
)

// importBatch is how many bookmarks go up per request.
const importBatch = 100

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import bookmarks from a Pinboard, Chrome or Firefox export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			items, err := importexport.ParseFile(data)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks found.")
				return nil
			}

			c, err := opts.sessionClient()
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(len(items),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Importing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish())

			var total importexport.ImportResult
			for start := 0; start < len(items); start += importBatch {
				end := min(start+importBatch, len(items))
				res, err := c.Import(cmd.Context(), items[start:end])
				if err != nil {
					return fmt.Errorf("import stopped after %d bookmarks: %w", total.Imported, explain(err))
				}
				total.Imported += res.Imported
				total.Duplicates += res.Duplicates
				total.Skipped += res.Skipped
				total.Errors = append(total.Errors, res.Errors...)
				bar.Add(end - start)
			}
			bar.Finish()

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, skipped %d duplicates and %d invalid entries\n",
				total.Imported, total.Duplicates, total.Skipped)
			if opts.Verbose {
				for _, e := range total.Errors {
					fmt.Fprintln(cmd.ErrOrStderr(), e)
				}
			}
			return nil
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export bookmarks as Pinboard JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.sessionClient()
			if err != nil {
				return err
			}
			rows, err := c.Export(cmd.Context())
			if err != nil {
				return explain(err)
			}

			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d bookmarks to %s\n", len(rows), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")

	return cmd
}
