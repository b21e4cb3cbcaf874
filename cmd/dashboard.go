package cmd

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/grovetools/wastenet/cli"
	"github.com/grovetools/wastenet/pkg/daemon"
	"github.com/grovetools/wastenet/pkg/reconcile"
	"github.com/grovetools/wastenet/tui"
	"github.com/grovetools/wastenet/tui/dashboard"
)

// NewDashboardCmd opens the operator dashboard.
func NewDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui"},
		Short:   "Open the live bin dashboard",
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

			tui.InitializeTUI()

			var p *tea.Program
			opts := syncOptions(cfg)
			opts.OnChange = func(c reconcile.Change) { p.Send(dashboard.ChangeMsg(c)) }
			opts.OnState = func(s reconcile.State) { p.Send(dashboard.StateMsg(s)) }
			engine := reconcile.New(client, opts, cli.GetLogger(cmd, "dashboard"))

			p = tea.NewProgram(dashboard.New(engine, client, requestTimeout), tea.WithAltScreen())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = engine.Run(ctx)
			}()

			_, err = p.Run()
			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return err
		},
	}
}
