package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent captures",
	Long: `List recent capture jobs, newest first, including failed ones.

History is kept in the SQLite database at history_path.`,
	Example: `  # List the last 20 captures in table format (default)
  tileshot history

  # List the last 5 captures as JSON
  tileshot history --limit 5 --format json`,
	RunE: runHistory,
}

var (
	historyLimit  int
	historyFormat string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of captures to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format (table or json)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HistoryPath == "" {
		return fmt.Errorf("history is disabled (history_path is empty)")
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	entries, err := store.List(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list captures: %w", err)
	}

	switch historyFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "table":
		return printHistoryTable(entries)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", historyFormat)
	}
}

func printHistoryTable(entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Println("No captures yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTATUS\tMODE\tSIZE\tTILES\tSINK\tFILE\tURL")
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = e.ErrorKind
		}
		size := "-"
		if e.Width > 0 {
			size = fmt.Sprintf("%dx%d", e.Width, e.Height)
		}
		tiles := fmt.Sprintf("%d", e.Tiles)
		if e.Skipped > 0 {
			tiles = fmt.Sprintf("%d (%d skipped)", e.Tiles, e.Skipped)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			status,
			e.Mode,
			size,
			tiles,
			e.Sink,
			e.Filename,
			e.URL,
		)
	}
	return w.Flush()
}
