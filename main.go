package main

import (
	"os"

	"github.com/conneroisu/koisite/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
