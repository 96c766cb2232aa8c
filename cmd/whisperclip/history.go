package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/whisperclip/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transcriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if historyLimit <= 0 {
			return fmt.Errorf("-n must be positive, got %d", historyLimit)
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		db, err := storage.Open(filepath.Join(cfg.DataDir, storage.FileName))
		if err != nil {
			return err
		}
		defer db.Close()

		rows, err := db.RecentTranscriptions(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no transcriptions yet")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tBACKEND\tTOOK\tTEXT")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				r.CreatedAt.Local().Format(time.DateTime), r.Backend, r.Duration.Round(time.Millisecond), historyText(r))
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

// historyText is the one-line text column: the transcript, or the error
// for a failed attempt.
func historyText(t storage.Transcription) string {
	if !t.Success {
		return "error: " + t.Error
	}
	return strings.Join(strings.Fields(t.Text), " ")
}
