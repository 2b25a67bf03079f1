package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reelflow/internal/models"
)

const defaultRunsLimit = 20

func booksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List books with their cursor and buffer depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			statuses, err := e.store.ListBookStatuses(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BOOK ID\tACTIVE\tCURSOR\tUNWATCHED\tTOTAL\tNAME")
			for _, s := range statuses {
				fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%d\t%s\n", s.BookID, s.Active, s.GeneratedCursor, s.Unwatched, s.Total, s.DisplayName)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(booksAddCmd())
	cmd.AddCommand(booksSetActiveCmd("deactivate", false))
	cmd.AddCommand(booksSetActiveCmd("activate", true))
	cmd.AddCommand(booksRunsCmd())

	return cmd
}

func booksAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <source-path> <display-name>",
		Short: "Register a book file relative to the uploads root",
		Long: `Register a book for fragment generation. The source path is
resolved under REELFLOW_UPLOADS_ROOT when the book is extracted.

Examples:
  reelctl books add walden.epub "Walden"
  reelctl books add essays/montaigne.pdf "Essays"
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := models.NewBook(args[0], args[1])
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.InsertBook(cmd.Context(), b); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
}

func booksSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <book-id>",
		Short: fmt.Sprintf("Mark a book %sd for supply passes", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.SetBookActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "book %s %sd\n", args[0], use)
			return nil
		},
	}
}

func booksRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <book-id>",
		Short: "Show recent generation attempts for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := e.store.ListGenerationRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSTATUS\tWINDOW\tFRAGMENTS\tPROVIDER\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t[%d,%d)\t%d\t%s/%s\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.Status, r.WindowStart, r.WindowEnd,
					r.FragmentCount, r.ProviderName, r.Model, r.ErrorType)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultRunsLimit, "maximum runs to show")

	return cmd
}
