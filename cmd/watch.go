package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/wastenet/cli"
	"github.com/grovetools/wastenet/config"
	"github.com/grovetools/wastenet/pkg/daemon"
	"github.com/grovetools/wastenet/pkg/reconcile"
	"github.com/grovetools/wastenet/tui/theme"
)

// syncOptions builds reconcile options from the sync section.
func syncOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		SnapshotTimeout: config.Duration(cfg.Sync.SnapshotTimeout, 5*time.Second),
		ResyncInterval:  config.Duration(cfg.Sync.ResyncInterval, time.Minute),
		Backoff: reconcile.Backoff{
			Initial: config.Duration(cfg.Sync.BackoffInitial, 500*time.Millisecond),
			Max:     config.Duration(cfg.Sync.BackoffMax, 30*time.Second),
		},
	}
}

// NewWatchCmd prints reconciled status changes as they arrive.
func NewWatchCmd() *cobra.Command {
	var binID string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow bin status changes from the daemon",
		Long: `Follow bin status changes from the daemon.

Each line is one accepted change of the reconciled view: full bins raise an
alert, emptied bins retract it. Connection state changes are printed as
they happen. A snapshot is merged on every (re)connect so alerts raised
while disconnected are still reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := daemon.MustConnect(factoryOptions(cfg))
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			t := theme.DefaultTheme
			opts := syncOptions(cfg)
			opts.OnState = func(s reconcile.State) {
				fmt.Fprintln(out, t.Muted.Render(fmt.Sprintf("[%s] connection %s", time.Now().Format("15:04:05"), s)))
			}
			opts.OnChange = func(c reconcile.Change) {
				if binID != "" && c.Bin.ID != binID {
					return
				}
				fmt.Fprintln(out, formatChange(t, c))
			}

			engine := reconcile.New(client, opts, cli.GetLogger(cmd, "watch"))
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&binID, "bin", "b", "", "Only print changes for this bin")
	return cmd
}

func formatChange(t *theme.Theme, c reconcile.Change) string {
	ts := c.Bin.LastUpdated.Local().Format("15:04:05")
	fill := fmt.Sprintf("%d/%d", c.Bin.TotalItems, c.Bin.Capacity)
	switch {
	case c.AlertRaised:
		return fmt.Sprintf("[%s] %s %s is full (%s)", ts, t.Error.Render("ALERT"), c.Bin.ID, fill)
	case c.AlertRetracted:
		return fmt.Sprintf("[%s] %s %s emptied (%s)", ts, t.Success.Render("CLEAR"), c.Bin.ID, fill)
	default:
		return fmt.Sprintf("[%s] %s %s (%s)", ts, c.Bin.ID, c.Bin.Status, fill)
	}
}
