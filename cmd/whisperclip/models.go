package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaz8081/whisperclip/internal/models"
	"github.com/chaz8081/whisperclip/internal/settings"
	"github.com/chaz8081/whisperclip/internal/storage"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Local whisper model tools",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local models, marking the downloaded and active one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		db, err := storage.Open(filepath.Join(cfg.DataDir, storage.FileName))
		if err != nil {
			return err
		}
		defer db.Close()

		// Credentials are not needed to read the active backend.
		st, err := settings.NewStore(db, nil, settings.Default()).Load()
		if err != nil {
			return err
		}

		store := models.NewStore(cfg.ModelsPath())
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSIZE\tSTATUS\tPATH")
		for _, m := range models.Catalog() {
			status := "-"
			if store.IsPresent(m.Size) {
				status = "downloaded"
			}
			if st.Active.IsLocal() && st.Active.Size == m.Size {
				status += ", active"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.SizeLabel, status, store.Path(m.Size))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if !st.Active.IsLocal() {
			fmt.Fprintf(cmd.OutOrStdout(), "\nactive backend: %s\n", st.Active.Label())
		}
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	rootCmd.AddCommand(modelsCmd)
}
