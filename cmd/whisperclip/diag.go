package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/whisperclip/internal/hotkey"
	"github.com/chaz8081/whisperclip/internal/inject"
)

var (
	diagMode   string
	diagMethod string
	diagDelay  time.Duration
)

var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Manual checks for desktop integration",
}

var diagHotkeyCmd = &cobra.Command{
	Use:   "hotkey",
	Short: "Print hotkey events for the configured combos until Ctrl+C",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if diagMode == "" {
			diagMode = cfg.Hotkey.Mode
		}
		mode, err := hotkey.ParseMode(diagMode)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Listening for %s (cancel: %s) in %q mode. Ctrl+C to exit.\n",
			strings.Join(cfg.Hotkey.Keys, "+"), strings.Join(cfg.Hotkey.CancelKeys, "+"), mode)

		listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.CancelKeys, mode)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			listener.Stop()
		}()
		go func() {
			for ev := range listener.Events() {
				fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), ev.Type)
			}
		}()

		// Blocks until stopped
		listener.Start()
		return nil
	},
}

var diagInjectCmd = &cobra.Command{
	Use:   "inject [text]",
	Short: "Deliver text with an inject method after a countdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := inject.ParseMethod(diagMethod)
		if err != nil {
			return err
		}
		text := "Hello from whisperclip!"
		if len(args) == 1 {
			text = args[0]
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Will inject %q using %q in %s. Focus a text editor now!\n", text, method, diagDelay)
		time.Sleep(diagDelay)

		if err := inject.NewInjector(method, nil).Inject(text); err != nil {
			return err
		}
		fmt.Fprintln(out, "Done.")
		return nil
	},
}

func init() {
	diagHotkeyCmd.Flags().StringVar(&diagMode, "mode", "", "hotkey mode: hold or toggle (default from config)")
	diagInjectCmd.Flags().StringVar(&diagMethod, "method", "paste", "inject method: clipboard, paste or type")
	diagInjectCmd.Flags().DurationVar(&diagDelay, "delay", 3*time.Second, "countdown before injecting")
	diagCmd.AddCommand(diagHotkeyCmd, diagInjectCmd)
	rootCmd.AddCommand(diagCmd)
}
