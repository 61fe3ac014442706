package main

import (
	"github.com/custodia-labs/lectern-cli/internal/adapters/driving/cli"
)

func main() {
	cli.Execute()
}
