package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/witanlabs/rowsmith/cmd"
	"github.com/witanlabs/rowsmith/internal/faults"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", faults.Describe(err))
		os.Exit(1)
	}
}
