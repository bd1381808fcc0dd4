package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/database"
	"github.com/TobiSchelling/labeldesk/internal/export"
)

// Row numbers on the command line are 1-based, like the web UI.

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show labeling progress and counts by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := ctrl.Statistics(cmd.Context())
		if err != nil {
			return err
		}
		printStatistics(os.Stdout, stats)
		return nil
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the item under the cursor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		item, done, err := ctrl.Current(cmd.Context())
		if err != nil {
			return err
		}
		if done {
			fmt.Println("All rows processed. Use 'labeldesk reset' or 'labeldesk jump' to continue.")
			return nil
		}
		fmt.Printf("Row %d of %d (original label: %s)\n\n", item.Position+1, ctrl.TotalRows(), item.LabelOrNA())
		fmt.Println(item.Text)
		fmt.Printf("\nCategories: %s\n", categoryList())
		return nil
	},
}

var labelRow int

var labelCmd = &cobra.Command{
	Use:       "label <category>",
	Short:     "Record a category for the current item and advance",
	Args:      cobra.ExactArgs(1),
	ValidArgs: categoryArgs(),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := ctrl.ClassifyAt(cmd.Context(), expectedRow(labelRow), args[0])
		if err != nil {
			if errors.Is(err, annotate.ErrInvalidCategory) {
				return errors.Wrapf(err, "choose one of %s", categoryList())
			}
			return err
		}
		fmt.Printf("Row %d labeled %s (submission %d). Next row: %d\n",
			res.Item.Position+1, database.Category(args[0]).Title(), res.SubmissionID, res.Progress.CurrentRow+1)
		return nil
	},
}

var skipRow int

var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip the current item without recording a label",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := ctrl.SkipAt(cmd.Context(), expectedRow(skipRow))
		if err != nil {
			return err
		}
		fmt.Printf("Row %d skipped. Next row: %d\n", res.Item.Position+1, res.Progress.CurrentRow+1)
		return nil
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Move the cursor to the first row and zero the counters (labels are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes && !confirm(os.Stdin, "Reset progress to the first row? Saved labels are kept. [y/N] ") {
			fmt.Println("Aborted.")
			return nil
		}

		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := ctrl.Reset(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Progress reset. New pass: %s\n", res.Progress.PassID)
		return nil
	},
}

var jumpCmd = &cobra.Command{
	Use:   "jump <row>",
	Short: "Move the cursor to a row without changing the counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Newf("row must be a number, got %q", args[0])
		}

		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		if _, err := ctrl.JumpTo(cmd.Context(), n-1); err != nil {
			if errors.Is(err, annotate.ErrOutOfRange) {
				return errors.Newf("row %d is outside 1..%d", n, ctrl.TotalRows())
			}
			return err
		}
		fmt.Printf("Cursor moved to row %d\n", n)
		return nil
	},
}

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all submissions as CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		subs, err := ctrl.Submissions(cmd.Context())
		if err != nil {
			return err
		}

		if err := writeExport(os.Stdout, exportOut, exportFormat, subs); err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Fprintf(os.Stderr, "Exported %d submissions to %s\n", len(subs), exportOut)
		}
		return nil
	},
}

func init() {
	labelCmd.Flags().IntVar(&labelRow, "row", 0, "Only label if the cursor is still at this row")
	skipCmd.Flags().IntVar(&skipRow, "row", 0, "Only skip if the cursor is still at this row")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", export.FormatCSV, "Export format: csv or json")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
}

// writeExport writes subs to path, or to stdout when path is empty.
func writeExport(stdout io.Writer, path, format string, subs []database.Submission) (err error) {
	if path == "" {
		return export.Write(stdout, format, subs)
	}
	if !export.Supported(format) {
		return errors.Newf("unknown export format %q (want csv or json)", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing export file")
		}
	}()
	return export.Write(f, format, subs)
}

// expectedRow converts a 1-based --row flag to the controller's guard value.
func expectedRow(flag int) int {
	if flag <= 0 {
		return annotate.AnyRow
	}
	return flag - 1
}

func confirm(in io.Reader, prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func categoryArgs() []string {
	out := make([]string, len(database.Categories))
	for i, c := range database.Categories {
		out[i] = string(c)
	}
	return out
}

func categoryList() string {
	return strings.Join(categoryArgs(), ", ")
}

func printStatistics(w io.Writer, stats *annotate.Statistics) {
	p := stats.Progress
	fmt.Fprintf(w, "Progress: row %d of %d (%.1f%%)\n", min(p.CurrentRow+1, stats.TotalRows), stats.TotalRows, stats.PercentComplete)
	if stats.Complete {
		fmt.Fprintln(w, "  All rows processed")
	}
	fmt.Fprintf(w, "  Processed: %d\n", p.TotalProcessed)
	fmt.Fprintf(w, "  Skipped: %d\n", p.TotalSkipped)
	fmt.Fprintf(w, "  Remaining: %d\n", stats.Remaining)
	if !p.LastUpdated.IsZero() {
		fmt.Fprintf(w, "  Last updated: %s\n", p.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "  Pass: %s\n", p.PassID)

	fmt.Fprintln(w, "\nSubmissions by category (this pass / all time):")
	for _, c := range database.Categories {
		fmt.Fprintf(w, "  %-15s %5d / %d\n", c.Title(), stats.PassCountsByCategory[c], stats.CountsByCategory[c])
	}
	fmt.Fprintf(w, "  %-15s %5s / %d\n", "Total", "", stats.TotalSubmissions)
}
