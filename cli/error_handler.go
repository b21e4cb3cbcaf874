package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/wastenet/errors"
	"github.com/grovetools/wastenet/tui/theme"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out
func NewErrorHandler(verbose bool, out io.Writer) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints a message tailored to the error code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	t := theme.DefaultTheme
	mark := t.Error.Render("✗")
	detail := func(key string) interface{} {
		if e, ok := errors.As(err); ok {
			return e.Details[key]
		}
		return nil
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		fmt.Fprintf(h.Out, "%s Bin '%v' does not exist\n", mark, detail("binId"))
		fmt.Fprintln(h.Out, t.Muted.Render("Run 'wastenet bins' to list provisioned bins."))

	case errors.ErrCodeInvalidInput:
		if e, ok := errors.As(err); ok {
			fmt.Fprintf(h.Out, "%s %s\n", mark, e.Message)
		} else {
			fmt.Fprintf(h.Out, "%s %v\n", mark, err)
		}

	case errors.ErrCodeTransient, errors.ErrCodeDaemonNotRunning:
		fmt.Fprintf(h.Out, "%s Could not reach the wastenet daemon\n", mark)
		fmt.Fprintln(h.Out, t.Muted.Render("Start it with 'wastenet daemon start' or check 'wastenet daemon status'."))

	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "%s Configuration not found at %v\n", mark, detail("path"))

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(h.Out, "%s Invalid configuration: %v\n", mark, err)
		fmt.Fprintln(h.Out, t.Muted.Render("Run 'wastenet config-layers' to see which file sets each value."))

	default:
		fmt.Fprintf(h.Out, "%s Error: %v\n", mark, err)
	}

	if h.Verbose {
		if e, ok := errors.As(err); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", e.ToJSON())
		}
	}
	return err
}
