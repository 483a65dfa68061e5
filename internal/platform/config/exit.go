package config

import (
	"fmt"
	"io"
	"os"
)

var exit = os.Exit

// Exitf writes a formatted error message to stderr and exits with code 1.
// Every storyframe binary uses it for fatal startup failures.
func Exitf(format string, args ...any) {
	exitTo(os.Stderr, format, args...)
}

// ExitIf exits through Exitf when err is non-nil, labelling it with what failed.
func ExitIf(err error, what string) {
	if err == nil {
		return
	}
	exitTo(os.Stderr, "%s: %v", what, err)
}

func exitTo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	exit(1)
}
