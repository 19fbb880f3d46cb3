package main

import (
	"os"

	"github.com/contenderhq/contender/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
