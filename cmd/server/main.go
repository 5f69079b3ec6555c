package main

import (
	"fmt"
	"os"

	"github.com/jengzang/respatch/internal/cli"
)

func main() {
	cmd := cli.ServeCmd()
	cmd.Use = "server"
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
