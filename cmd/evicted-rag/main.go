package main

import (
	"os"

	"github.com/rcliao/evicted-rag/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
