package main

import (
	"os"

	"github.com/koustreak/pgtree/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
