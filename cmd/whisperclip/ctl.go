package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/whisperclip/internal/control"
	"github.com/chaz8081/whisperclip/internal/dbusctl"
	"github.com/chaz8081/whisperclip/internal/session"
)

var (
	ctlTimeout time.Duration
	ctlWatch   bool
)

var ctlCmd = &cobra.Command{
	Use:   "ctl <command> [arg]",
	Short: "Send a command to the running daemon over D-Bus",
	Long:  "Send a command to the running daemon over D-Bus.\n\nCommands:\n" + commandTable(),
	Args:  cobra.RangeArgs(1, 2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var names []string
		for _, c := range control.Commands() {
			names = append(names, c.Name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runCtl,
}

func init() {
	ctlCmd.Flags().DurationVar(&ctlTimeout, "timeout", 5*time.Second, "how long to wait for the daemon")
	ctlCmd.Flags().BoolVarP(&ctlWatch, "watch", "w", false, "with status: keep printing status changes")
	rootCmd.AddCommand(ctlCmd)
}

func runCtl(cmd *cobra.Command, args []string) error {
	name, arg := args[0], ""
	if len(args) == 2 {
		arg = args[1]
	}

	client, err := dbusctl.Dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if name == control.CmdStatus {
		if arg != "" {
			return fmt.Errorf("%w: status takes no argument", control.ErrInvalidCommand)
		}
		return printStatus(cmd, client)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	defer cancel()
	return client.Execute(ctx, name, arg)
}

func printStatus(cmd *cobra.Command, client *dbusctl.Client) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), ctlTimeout)
	_, raw, err := client.Status(ctx)
	cancel()
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())

	if !ctlWatch {
		return nil
	}

	wctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	updates, err := client.Watch(wctx)
	if err != nil {
		return err
	}
	for st := range updates {
		fmt.Fprintln(cmd.OutOrStdout(), statusLine(st))
	}
	return nil
}

// statusLine renders a status on one line, e.g.
// "downloading local-small 42% (active: local-base)".
func statusLine(st session.Status) string {
	var b strings.Builder
	b.WriteString(st.State.String())
	if st.State == session.DownloadingModel {
		fmt.Fprintf(&b, " %s", st.Target)
		if st.Progress != nil && st.Progress.Total > 0 {
			fmt.Fprintf(&b, " %.0f%%", st.Progress.Fraction()*100)
		}
		fmt.Fprintf(&b, " (active: %s)", st.Backend)
	} else {
		fmt.Fprintf(&b, " %s", st.Backend)
	}
	if st.Message != "" {
		fmt.Fprintf(&b, ": %s", st.Message)
	}
	return b.String()
}

func commandTable() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, c := range control.Commands() {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", c.Name, c.Arg, c.Summary)
	}
	w.Flush()
	return b.String()
}
