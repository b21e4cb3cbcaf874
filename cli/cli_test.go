package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/errors"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown bin", errors.BinNotFound("BIN-404", "logItem"), "Bin 'BIN-404' does not exist"},
		{"invalid input", errors.InvalidInput("logItem", "wasteType is required"), "wasteType is required"},
		{"daemon down", errors.Transient("get bins", fmt.Errorf("connection refused")), "wastenet daemon start"},
		{"bad config", errors.New(errors.ErrCodeConfigValidation, "sync.transport"), "config-layers"},
		{"plain error", fmt.Errorf("boom"), "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			got := NewErrorHandler(false, &buf).Handle(tt.err)
			assert.Equal(t, tt.err, got)
			assert.Contains(t, buf.String(), tt.want)
			assert.NotContains(t, buf.String(), "Error details")
		})
	}
}

func TestErrorHandlerVerbose(t *testing.T) {
	var buf bytes.Buffer
	_ = NewErrorHandler(true, &buf).Handle(errors.BinNotFound("BIN-9", "empty"))
	assert.Contains(t, buf.String(), `"binId": "BIN-9"`)
}

func TestStyledHelp(t *testing.T) {
	root := NewStandardCommand("wastenet", "Track bin fill levels")
	child := &cobra.Command{Use: "bins", Short: "List bins", Aliases: []string{"ls"}, Run: func(*cobra.Command, []string) {}}
	child.Flags().String("bin", "", "Bin to show")
	child.Example = "# show every bin\nwastenet bins --json"
	root.AddCommand(child)

	var buf bytes.Buffer
	renderHelp(&buf, root, 60)
	out := buf.String()
	assert.Contains(t, out, "WASTENET")
	assert.Contains(t, out, "COMMANDS")
	assert.Contains(t, out, "bins")
	assert.Contains(t, out, "--config")

	buf.Reset()
	renderHelp(&buf, child, 60)
	out = buf.String()
	assert.Contains(t, out, "WASTENET BINS")
	assert.Contains(t, out, "aliases: ls")
	assert.Contains(t, out, "--bin")
	assert.Contains(t, out, "EXAMPLES")
	assert.Contains(t, out, "wastenet bins --json")
	assert.Contains(t, out, "GLOBAL FLAGS")
	assert.Contains(t, out, "--verbose")
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four five six", 9)
	assert.Equal(t, "one two\nthree\nfour five\nsix", wrapped)
}

func TestVersionCommandJSON(t *testing.T) {
	root := NewStandardCommand("wastenet", "root")
	root.AddCommand(NewVersionCommand("wastenet"))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"version", "--json"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), `"version": "dev"`)
}
