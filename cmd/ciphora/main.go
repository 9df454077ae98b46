package main

import (
	"os"

	"github.com/vault-cli/ciphora/internal/cli"
	"github.com/vault-cli/ciphora/internal/util"
)

func main() {
	// Handle panics gracefully
	defer func() {
		if r := recover(); r != nil {
			util.ExitWithCode(util.ExitError, "Fatal error: %v", r)
		}
	}()

	err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr)
	util.HandleError(err)
}
