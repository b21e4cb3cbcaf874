package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/wastenet/pkg/paths"
)

// PathsOutput represents the XDG-compliant paths used by wastenet.
type PathsOutput struct {
	ConfigDir  string `json:"config_dir"`
	DataDir    string `json:"data_dir"`
	StateDir   string `json:"state_dir"`
	RuntimeDir string `json:"runtime_dir"`
	Socket     string `json:"socket"`
	PidFile    string `json:"pid_file"`
	Database   string `json:"database"`
	LogDir     string `json:"log_dir"`
}

func NewPathsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the XDG-compliant paths used by wastenet",
		Long: `Print the XDG-compliant paths used by wastenet.

This command outputs the paths in JSON format, making it easy to parse from
scripts and other tools.

The paths follow the XDG Base Directory Specification and can be relocated
as a whole with WASTENET_HOME:
- config_dir: Global configuration (wastenet.yml)
- data_dir: Persistent data (the bin database)
- state_dir: Daemon state (pid file, logs)
- runtime_dir: The daemon socket`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), PathsOutput{
				ConfigDir:  paths.ConfigDir(),
				DataDir:    paths.DataDir(),
				StateDir:   paths.StateDir(),
				RuntimeDir: paths.RuntimeDir(),
				Socket:     paths.SocketPath(),
				PidFile:    paths.PidFilePath(),
				Database:   paths.DBPath(),
				LogDir:     paths.LogDir(),
			})
		},
	}

	return cmd
}
