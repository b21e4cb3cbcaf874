package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/wastenet/cli"
	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/logging"
	"github.com/grovetools/wastenet/pkg/classify"
	"github.com/grovetools/wastenet/pkg/models"
	"github.com/grovetools/wastenet/state"
	"github.com/grovetools/wastenet/tui/components/table"
	"github.com/grovetools/wastenet/tui/theme"
)

const requestTimeout = 5 * time.Second

// NewBinsCmd lists every bin.
func NewBinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bins [bin-id]",
		Short: "List bins and their fill levels",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			var bins []models.BinRecord
			if len(args) == 1 {
				bin, err := client.GetBin(ctx, args[0])
				if err != nil {
					return err
				}
				bins = []models.BinRecord{bin}
			} else if bins, err = client.GetBins(ctx); err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(cmd.OutOrStdout(), bins)
			}
			if len(bins) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bins provisioned.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), table.Bins(theme.DefaultTheme, bins))
			return nil
		},
	}
}

// NewLogCmd records one item in a bin, either by category or by a
// detector label and score.
func NewLogCmd() *cobra.Command {
	var (
		binID string
		label string
		score float64
	)
	cmd := &cobra.Command{
		Use:   "log [category]",
		Short: "Record one item deposited in a bin",
		Long: `Record one item deposited in a bin.

Pass the waste category directly, or a detector label and confidence score
with --label and --score. Labels are mapped to categories by the classifier
section of wastenet.yml; scores at or below the threshold are rejected.

The bin defaults to the one selected with 'wastenet use'.`,
		Example: `  wastenet log plastic --bin BIN-001
  wastenet log --label bottle --score 0.82`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := resolveBin(binID)
			if err != nil {
				return err
			}

			var category string
			switch {
			case len(args) == 1 && label != "":
				return errors.InvalidInput("log", "pass either a category or --label, not both")
			case len(args) == 1:
				category = args[0]
			case label != "":
				classifier := classify.New(cfg.Classifier.Threshold, cfg.Classifier.Labels)
				if category, err = classifier.Classify(classify.Prediction{Label: label, Score: score}); err != nil {
					return err
				}
			default:
				return errors.InvalidInput("log", "a waste category or --label is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			bin, err := client.LogItem(ctx, id, category)
			if err != nil {
				return err
			}
			return printBin(cmd, bin, fmt.Sprintf("Logged %s in %s", category, bin.ID))
		},
	}
	cmd.Flags().StringVarP(&binID, "bin", "b", "", "Bin to log into (default: selected bin)")
	cmd.Flags().StringVar(&label, "label", "", "Detector label to classify")
	cmd.Flags().Float64Var(&score, "score", 1, "Detector confidence for --label")
	return cmd
}

// NewEmptyCmd resets a bin after collection.
func NewEmptyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "empty [bin-id]",
		Short: "Mark a bin as collected",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			id, err := resolveBin(arg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			bin, err := client.Empty(ctx, id)
			if err != nil {
				return err
			}
			return printBin(cmd, bin, fmt.Sprintf("Emptied %s", bin.ID))
		},
	}
}

// NewUseCmd selects the default bin for log and empty.
func NewUseCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "use [bin-id]",
		Short: "Select the default bin for this directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if reset {
				if err := state.SetDefaultBin(""); err != nil {
					return err
				}
				pretty.Success("Cleared default bin")
				return nil
			}
			if len(args) == 0 {
				id, err := state.DefaultBin()
				if err != nil {
					return err
				}
				if id == "" {
					pretty.InfoPretty("No default bin selected")
				} else {
					pretty.Field("Default bin", id)
				}
				return nil
			}

			client, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			bin, err := client.GetBin(ctx, args[0])
			if err != nil {
				return err
			}
			if err := state.SetDefaultBin(bin.ID); err != nil {
				return err
			}
			pretty.Success(fmt.Sprintf("Using %s", bin.ID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "clear", false, "Clear the selected bin")
	return cmd
}

// resolveBin returns id, or the selected bin when id is empty.
func resolveBin(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	id, err := state.DefaultBin()
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.InvalidInput("resolveBin", "no bin given; pass one or select a default with 'wastenet use <bin-id>'")
	}
	return id, nil
}

func printBin(cmd *cobra.Command, bin models.BinRecord, message string) error {
	if cli.GetOptions(cmd).JSONOutput {
		return writeJSON(cmd.OutOrStdout(), bin)
	}
	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	pretty.Success(message)
	pretty.Field("Items", fmt.Sprintf("%d/%d", bin.TotalItems, bin.Capacity))
	pretty.Field("Status", string(bin.Status))
	if bin.Status == models.StatusFull {
		pretty.WarnPretty(fmt.Sprintf("%s is full and needs collection", bin.ID))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
