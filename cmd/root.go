// Package cmd implements the wastenet command tree.
package cmd

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/wastenet/cli"
	"github.com/grovetools/wastenet/config"
	"github.com/grovetools/wastenet/pkg/daemon"
	"github.com/grovetools/wastenet/pkg/paths"
)

// NewRootCmd builds the wastenet command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand("wastenet", "Smart bin fill tracking and collection alerts")
	root.Long = `wastenet tracks how full each smart bin is and alerts operators the moment
a bin fills up.

The daemon owns the bin state and pushes every status change to connected
dashboards. The other commands talk to the daemon when it is running and
fall back to the local database when it is not.`

	root.AddCommand(
		NewDaemonCmd(),
		NewBinsCmd(),
		NewLogCmd(),
		NewEmptyCmd(),
		NewUseCmd(),
		NewWatchCmd(),
		NewDashboardCmd(),
		NewConfigCmd(),
		NewPathsCmd(),
		cli.NewVersionCommand("wastenet"),
	)
	return root
}

// socketPath resolves server.socket; "none" disables the socket.
func socketPath(cfg *config.Config) string {
	switch cfg.Server.Socket {
	case "none":
		return ""
	case "":
		return paths.SocketPath()
	default:
		return cfg.Server.Socket
	}
}

func dbPath(cfg *config.Config) string {
	if cfg.Store.DBPath != "" {
		return cfg.Store.DBPath
	}
	return paths.DBPath()
}

// factoryOptions describes how clients reach the daemon for cfg.
func factoryOptions(cfg *config.Config) daemon.FactoryOptions {
	sock := socketPath(cfg)
	if sock == "" {
		// Point at a path that never exists so the factory goes straight to TCP.
		sock = filepath.Join(paths.RuntimeDir(), "disabled.sock")
	}
	return daemon.FactoryOptions{
		BaseURL:          cfg.Sync.ServerURL,
		SocketPath:       sock,
		DBPath:           dbPath(cfg),
		Seeds:            cfg.Seeds(),
		Transport:        cfg.Sync.Transport,
		HeartbeatTimeout: config.Duration(cfg.Sync.HeartbeatTimeout, 45*time.Second),
	}
}

// newClient loads the config and returns a daemon or local client.
func newClient(cmd *cobra.Command) (daemon.Client, *config.Config, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	return daemon.New(factoryOptions(cfg)), cfg, nil
}
