package main

import (
	"errors"
	"os"

	"github.com/yoanbernabeu/pilauncher/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		cmd.PrintError("%v", err)
		os.Exit(1)
	}
}
