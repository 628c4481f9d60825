package main

import (
	"fmt"
	"os"

	"github.com/andreyvit/zedb/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zedb:", err)
		os.Exit(1)
	}
}
